//go:build wireinject

package main

import (
	"github.com/google/wire"
	"hydrogen.im/hydrogen-worker/app/domain"
	"hydrogen.im/hydrogen-worker/app/infrastructure"
	"hydrogen.im/hydrogen-worker/app/interfaces/http"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes"
)

func CreateApplication() (*Application, func(), error) {
	wire.Build(
		infrastructure.InfrastructureProvider,
		domain.ServiceProvider,
		routes.RouteProvider,
		http.NewHttpServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
