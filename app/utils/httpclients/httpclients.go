package httpclients

import (
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
	"resty.dev/v3"
)

func NewClient(name string) *resty.Client {
	client := resty.New()
	client.SetTimeout(environment_variables.Current().FETCH_TIMEOUT)
	client.SetHeader("User-Agent", "hydrogen-worker/"+config.Version)
	client.SetLogger(logger.GetLogger().WithField("client", name))
	return client
}
