package worker

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/middleware"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type WorkerRoute struct {
	dispatcher *protocol.Dispatcher
	lifecycle  *lifecycle.Manager
	upgrader   websocket.Upgrader
}

func NewWorkerRoute(dispatcher *protocol.Dispatcher, lifecycle *lifecycle.Manager) *WorkerRoute {
	return &WorkerRoute{
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (workerRoute *WorkerRoute) RegisterRouter(router gin.IRouter) {
	adminAuth := middleware.JWTAuth(func() []byte {
		return environment_variables.Current().ADMIN_JWT_SECRET
	})
	router.GET("/worker/ws", func(reqCtx *gin.Context) {
		// worker connections drive the lifecycle, so they need the admin token
		if protocol.ClientType(reqCtx.Query("type")) == protocol.ClientTypeWorker {
			adminAuth(reqCtx)
			return
		}
		reqCtx.Next()
	}, workerRoute.Connect)
}

// Connect godoc
// @Summary     Connect an execution context
// @Description Upgrades to a WebSocket carrying protocol envelopes. Windows report their url, visibility and focus as query parameters and later through clientState messages.
// @Tags        worker
// @Param       type       query string false "window or worker"
// @Param       url        query string false "current location of the window"
// @Param       visibility query string false "visible or hidden"
// @Param       focused    query bool   false "whether the window has focus"
// @Security    BearerAuth
// @Success     101
// @Failure     401 {object} responses.ErrorResponse
// @Router      /worker/ws [get]
func (workerRoute *WorkerRoute) Connect(reqCtx *gin.Context) {
	state := protocol.ClientState{
		URL:             reqCtx.Query("url"),
		VisibilityState: reqCtx.DefaultQuery("visibility", protocol.VisibilityVisible),
	}
	if focused := reqCtx.Query("focused"); focused != "" {
		f, err := strconv.ParseBool(focused)
		if err != nil {
			reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{
				Code:  "0b9f6c52-3e1d-4d8a-a6f7-2c54e8b1d903",
				Error: "focused must be a boolean",
			})
			return
		}
		state.Focused = f
	}

	ws, err := workerRoute.upgrader.Upgrade(reqCtx.Writer, reqCtx.Request, nil)
	if err != nil {
		logger.GetLogger().Warnf("websocket upgrade failed: %v", err)
		return
	}
	conn := newWSConn(ws)
	client := protocol.NewClient(protocol.ClientType(reqCtx.Query("type")), conn, state)
	workerRoute.lifecycle.Adopt(client)

	registry := workerRoute.dispatcher.Registry()
	registry.Register(client)
	log := logger.GetLogger().WithField("client_id", client.ID)
	log.Infof("%s connected", client.Type)

	defer func() {
		registry.Unregister(client.ID)
		conn.Close()
		log.Infof("%s disconnected", client.Type)
		if err := workerRoute.lifecycle.ActivateIfIdle(context.Background()); err != nil {
			log.Errorf("activating waiting version failed: %v", err)
		}
	}()

	for {
		env, err := conn.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("read failed: %v", err)
			}
			return
		}
		if env.Blocking() {
			// two-phase commands outlive the issuing connection
			go workerRoute.dispatcher.Dispatch(context.Background(), client, env)
			continue
		}
		workerRoute.dispatcher.Dispatch(reqCtx.Request.Context(), client, env)
	}
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	env := environment_variables.Current()
	if slices.Contains(env.ALLOWED_CORS_HOSTS, origin) {
		return true
	}
	scope, err := env.ScopeURL()
	if err != nil {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Scheme == scope.Scheme && u.Host == scope.Host
}
