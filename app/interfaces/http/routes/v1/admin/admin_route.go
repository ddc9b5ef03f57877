package admin

import (
	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/middleware"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type AdminRoute struct {
	cacheRoute     *CacheRoute
	lifecycleRoute *LifecycleRoute
}

func NewAdminRoute(cacheRoute *CacheRoute, lifecycleRoute *LifecycleRoute) *AdminRoute {
	return &AdminRoute{
		cacheRoute,
		lifecycleRoute,
	}
}

func (adminRoute *AdminRoute) RegisterRouter(router gin.IRouter) {
	adminRouter := router.Group("/admin", middleware.JWTAuth(func() []byte {
		return environment_variables.Current().ADMIN_JWT_SECRET
	}))
	adminRoute.cacheRoute.RegisterRouter(adminRouter)
	adminRoute.lifecycleRoute.RegisterRouter(adminRouter)
}
