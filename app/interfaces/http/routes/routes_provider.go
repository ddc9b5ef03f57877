package routes

import (
	"github.com/google/wire"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/intercept"
	v1 "hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/admin"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/notifications"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/push"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/worker"
)

var RouteProvider = wire.NewSet(
	admin.NewCacheRoute,
	admin.NewLifecycleRoute,
	admin.NewAdminRoute,
	push.NewPushRoute,
	notifications.NewNotificationsRoute,
	v1.NewV1Route,
	worker.NewWorkerRoute,
	intercept.NewInterceptRoute,
)
