package push

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/notification"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/middleware"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type PushRoute struct {
	engine *notification.Engine
}

func NewPushRoute(engine *notification.Engine) *PushRoute {
	return &PushRoute{
		engine: engine,
	}
}

func (pushRoute *PushRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/push", middleware.JWTAuth(func() []byte {
		return environment_variables.Current().PUSH_JWT_SECRET
	}), pushRoute.Push)
}

// Push godoc
// @Summary     Deliver a push payload
// @Description Shows, replaces or clears notifications for the payload. A new-message payload is suppressed when a focused window already shows the room.
// @Tags        notifications
// @Accept      json
// @Security    BearerAuth
// @Param       request body notification.PushPayload true "push payload"
// @Success     202
// @Failure     400 {object} responses.ErrorResponse
// @Failure     500 {object} responses.ErrorResponse
// @Router      /v1/push [post]
func (pushRoute *PushRoute) Push(reqCtx *gin.Context) {
	var payload notification.PushPayload
	if err := reqCtx.ShouldBindJSON(&payload); err != nil {
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{
			Code:  "8e2a6f14-c93d-4b07-a5e1-d4f8b2c6a930",
			Error: "invalid push payload",
		})
		return
	}
	if err := pushRoute.engine.HandlePush(reqCtx.Request.Context(), payload); err != nil {
		logger.GetLogger().Errorf("push for session %s failed: %v", payload.SessionID, err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "1f6d9b3a-70e2-4c58-8b4d-a2e5c7f09d16",
			Error: "failed to handle push",
		})
		return
	}
	reqCtx.Status(http.StatusAccepted)
}
