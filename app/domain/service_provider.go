package domain

import (
	"github.com/google/wire"
	"hydrogen.im/hydrogen-worker/app/domain/cron"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/domain/healthcheck"
	"hydrogen.im/hydrogen-worker/app/domain/interception"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/domain/manifest"
	"hydrogen.im/hydrogen-worker/app/domain/notification"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
)

var ServiceProvider = wire.NewSet(
	fetchscope.NewScope,
	manifest.NewLoader,
	protocol.NewRegistry,
	protocol.NewMessenger,
	protocol.NewCoordinator,
	protocol.NewDispatcher,
	lifecycle.NewManager,
	wire.Bind(new(protocol.Lifecycle), new(*lifecycle.Manager)),
	wire.Bind(new(interception.ManifestSource), new(*lifecycle.Manager)),
	interception.NewHandler,
	notification.NewCenter,
	notification.NewEventOpener,
	wire.Bind(new(notification.WindowOpener), new(*notification.EventOpener)),
	notification.NewEngine,
	cron.NewService,
	wire.Bind(new(cron.ManifestLoader), new(*manifest.Loader)),
	wire.Bind(new(cron.Deployer), new(*lifecycle.Manager)),
	healthcheck.NewService,
)
