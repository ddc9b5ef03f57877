package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mileusna/crontab"
	"hydrogen.im/hydrogen-worker/app/domain/cron"
	"hydrogen.im/hydrogen-worker/app/domain/healthcheck"
	"hydrogen.im/hydrogen-worker/app/interfaces/http"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type Application struct {
	HttpServer  *http.HttpServer
	CronService *cron.CronService
	Healthcheck *healthcheck.HealthcheckCrontabService
}

func (application *Application) Start(ctx context.Context) {
	ctab := crontab.New()
	defer ctab.Shutdown()
	application.Healthcheck.Start(ctx, ctab)
	application.CronService.Start(ctx, ctab)

	if err := application.HttpServer.Run(ctx); err != nil {
		logger.GetLogger().Fatalf("http server stopped: %v", err)
	}
}

func init() {
	env := environment_variables.Reload()
	logger.Configure(logger.GetLogger(), env.LOG_LEVEL, env.LOG_FORMAT)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := CreateApplication()
	if err != nil {
		logger.GetLogger().Fatalf("failed to create application: %v", err)
	}
	defer cleanup()

	logger.GetLogger().Infof("hydrogen-worker %s starting", config.Version)
	application.Start(ctx)
}
