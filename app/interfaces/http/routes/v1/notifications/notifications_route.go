package notifications

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/notification"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

type NotificationsRoute struct {
	engine *notification.Engine
}

func NewNotificationsRoute(engine *notification.Engine) *NotificationsRoute {
	return &NotificationsRoute{
		engine: engine,
	}
}

func (route *NotificationsRoute) RegisterRouter(router gin.IRouter) {
	notificationsRouter := router.Group("/notifications")
	notificationsRouter.GET("", route.List)
	notificationsRouter.GET("/events", route.Events)
	notificationsRouter.DELETE("/:id", route.requireID, route.Close)
	notificationsRouter.POST("/:id/click", route.requireID, route.Click)
}

func (route *NotificationsRoute) requireID(reqCtx *gin.Context) {
	if !notification.IsNotificationID(reqCtx.Param("id")) {
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{
			Code:  "b27c9e40-5d13-4f8a-a6e2-c9f0d3b81a57",
			Error: "malformed notification id",
		})
		return
	}
	reqCtx.Next()
}

// List godoc
// @Summary     List shown notifications
// @Tags        notifications
// @Produce     json
// @Param       tag query string false "new_message or messages_read"
// @Success     200 {object} responses.GeneralResponse[[]notification.Notification]
// @Router      /v1/notifications [get]
func (route *NotificationsRoute) List(reqCtx *gin.Context) {
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[[]*notification.Notification]{
		Status: responses.ResponseCodeOk,
		Result: route.engine.Center().List(reqCtx.Query("tag")),
	})
}

// Close godoc
// @Summary     Dismiss a notification
// @Tags        notifications
// @Param       id path string true "notification id"
// @Success     204
// @Failure     400 {object} responses.ErrorResponse
// @Failure     404 {object} responses.ErrorResponse
// @Router      /v1/notifications/{id} [delete]
func (route *NotificationsRoute) Close(reqCtx *gin.Context) {
	if !route.engine.Center().Close(reqCtx.Param("id")) {
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{
			Code:  notification.ErrNotificationNotFound.Code,
			Error: notification.ErrNotificationNotFound.Message,
		})
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

// Click godoc
// @Summary     Activate a notification
// @Description Closes the notification and navigates a window on its session to the room, or asks for a new window.
// @Tags        notifications
// @Param       id path string true "notification id"
// @Success     204
// @Failure     404 {object} responses.ErrorResponse
// @Failure     500 {object} responses.ErrorResponse
// @Router      /v1/notifications/{id}/click [post]
func (route *NotificationsRoute) Click(reqCtx *gin.Context) {
	err := route.engine.HandleClick(reqCtx.Request.Context(), reqCtx.Param("id"))
	if errors.Is(err, notification.ErrNotificationNotFound) {
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{
			Code:  notification.ErrNotificationNotFound.Code,
			Error: notification.ErrNotificationNotFound.Message,
		})
		return
	}
	if err != nil {
		logger.GetLogger().Errorf("notification click failed: %v", err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "6b0e8d42-f1a7-4c93-9d25-3e7a1c0b8f64",
			Error: "failed to open notification target",
		})
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

// Events godoc
// @Summary     Notification event stream
// @Description Server-sent events for shown and closed notifications and for windows to open.
// @Tags        notifications
// @Produce     text/event-stream
// @Success     200
// @Router      /v1/notifications/events [get]
func (route *NotificationsRoute) Events(reqCtx *gin.Context) {
	events, cancel := route.engine.Center().Subscribe()
	defer cancel()

	reqCtx.Header("Content-Type", "text/event-stream")
	reqCtx.Header("Cache-Control", "no-cache")
	reqCtx.Header("Connection", "keep-alive")
	reqCtx.Writer.Flush()

	reqCtx.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.GetLogger().Errorf("failed to encode notification event: %v", err)
				return true
			}
			reqCtx.SSEvent(string(ev.Type), string(data))
			return true
		case <-reqCtx.Request.Context().Done():
			return false
		}
	})
}
