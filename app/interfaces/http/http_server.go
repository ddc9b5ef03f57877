package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/healthcheck"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/middleware"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/intercept"
	v1 "hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/worker"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type HttpServer struct {
	engine         *gin.Engine
	v1Route        *v1.V1Route
	workerRoute    *worker.WorkerRoute
	interceptRoute *intercept.InterceptRoute
	healthcheck    *healthcheck.HealthcheckCrontabService
}

func NewHttpServer(
	v1Route *v1.V1Route,
	workerRoute *worker.WorkerRoute,
	interceptRoute *intercept.InterceptRoute,
	healthcheckService *healthcheck.HealthcheckCrontabService,
) *HttpServer {
	gin.SetMode(gin.ReleaseMode)
	server := HttpServer{
		engine:         gin.New(),
		v1Route:        v1Route,
		workerRoute:    workerRoute,
		interceptRoute: interceptRoute,
		healthcheck:    healthcheckService,
	}
	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.LoggerMiddleware(logger.GetLogger()))
	server.engine.Use(middleware.CORS())
	server.engine.GET("/health-check", server.HealthCheck)
	server.workerRoute.RegisterRouter(server.engine)
	server.v1Route.RegisterRouter(server.engine.Group("/"))
	server.interceptRoute.RegisterRouter(server.engine)
	return &server
}

func (httpServer *HttpServer) Handler() http.Handler {
	return httpServer.engine
}

func (httpServer *HttpServer) HealthCheck(c *gin.Context) {
	if err := httpServer.healthcheck.CheckStorage(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, responses.ErrorResponse{
			Code:  "5d2f8a07-b4c1-4e96-8a3d-c0e7f1b9d452",
			Error: "cache storage unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, "ok")
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (httpServer *HttpServer) Run(ctx context.Context) error {
	port := environment_variables.Current().HTTP_PORT
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: httpServer.engine,
	}

	errc := make(chan error, 1)
	go func() {
		logger.GetLogger().Infof("listening on :%d", port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
