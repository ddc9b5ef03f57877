package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/cron"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

type LifecycleRoute struct {
	lifecycle *lifecycle.Manager
	watcher   *cron.CronService
}

func NewLifecycleRoute(lifecycle *lifecycle.Manager, watcher *cron.CronService) *LifecycleRoute {
	return &LifecycleRoute{
		lifecycle: lifecycle,
		watcher:   watcher,
	}
}

func (route *LifecycleRoute) RegisterRouter(router gin.IRouter) {
	lifecycleRouter := router.Group("/lifecycle")
	lifecycleRouter.GET("", route.GetStatus)
	lifecycleRouter.POST("/skip-waiting", route.SkipWaiting)
	lifecycleRouter.POST("/reload", route.Reload)
}

// GetStatus godoc
// @Summary     Lifecycle status
// @Description Active and waiting versions, whether network requests are halted and how many contexts are connected.
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} responses.GeneralResponse[lifecycle.Status]
// @Router      /v1/admin/lifecycle [get]
func (route *LifecycleRoute) GetStatus(reqCtx *gin.Context) {
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[lifecycle.Status]{
		Status: responses.ResponseCodeOk,
		Result: route.lifecycle.Status(),
	})
}

// SkipWaiting godoc
// @Summary     Activate the waiting version now
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} responses.GeneralResponse[lifecycle.Status]
// @Failure     500 {object} responses.ErrorResponse
// @Router      /v1/admin/lifecycle/skip-waiting [post]
func (route *LifecycleRoute) SkipWaiting(reqCtx *gin.Context) {
	if err := route.lifecycle.SkipWaiting(reqCtx.Request.Context()); err != nil {
		logger.GetLogger().Errorf("admin lifecycle: skip waiting failed: %v", err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "3c8f0e62-a5d1-4b79-9e24-d6b1f7a0c395",
			Error: "failed to activate waiting version",
		})
		return
	}
	route.GetStatus(reqCtx)
}

// Reload godoc
// @Summary     Reload the manifest
// @Description Reads the manifest file now instead of waiting for the next watch tick, deploying it if its build changed.
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} responses.GeneralResponse[lifecycle.Status]
// @Failure     500 {object} responses.ErrorResponse
// @Router      /v1/admin/lifecycle/reload [post]
func (route *LifecycleRoute) Reload(reqCtx *gin.Context) {
	if err := route.watcher.CheckManifest(reqCtx.Request.Context()); err != nil {
		logger.GetLogger().Errorf("admin lifecycle: reload failed: %v", err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "d95a7b13-02e8-4c6f-b1a4-58e3f9c0d726",
			Error: "failed to reload manifest",
		})
		return
	}
	route.GetStatus(reqCtx)
}
