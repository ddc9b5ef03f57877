package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/admin"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/notifications"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/push"
	"hydrogen.im/hydrogen-worker/config"
)

type V1Route struct {
	pushRoute          *push.PushRoute
	notificationsRoute *notifications.NotificationsRoute
	adminRoute         *admin.AdminRoute
	lifecycle          *lifecycle.Manager
}

func NewV1Route(
	pushRoute *push.PushRoute,
	notificationsRoute *notifications.NotificationsRoute,
	adminRoute *admin.AdminRoute,
	lifecycle *lifecycle.Manager,
) *V1Route {
	return &V1Route{
		pushRoute,
		notificationsRoute,
		adminRoute,
		lifecycle,
	}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Router.GET("/version", v1Route.GetVersion)
	v1Route.pushRoute.RegisterRouter(v1Router)
	v1Route.notificationsRoute.RegisterRouter(v1Router)
	v1Route.adminRoute.RegisterRouter(v1Router)
}

type VersionResponse struct {
	Version       string `json:"version"`
	BuildHash     string `json:"buildHash"`
	WorkerVersion string `json:"worker_version"`
}

// GetVersion godoc
// @Summary     Get version
// @Description Returns the version and build hash of the active generation, falling back to the worker build.
// @Tags        system
// @Produce     json
// @Success     200 {object} VersionResponse
// @Router      /v1/version [get]
func (v1Route *V1Route) GetVersion(c *gin.Context) {
	info := v1Route.lifecycle.Version()
	c.JSON(http.StatusOK, VersionResponse{
		Version:       info.Version,
		BuildHash:     info.BuildHash,
		WorkerVersion: config.Version,
	})
}
