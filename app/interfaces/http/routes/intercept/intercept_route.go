package intercept

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/domain/interception"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

const SourceHeader = "X-Worker-Source"

type InterceptRoute struct {
	handler *interception.Handler
}

func NewInterceptRoute(handler *interception.Handler) *InterceptRoute {
	return &InterceptRoute{
		handler: handler,
	}
}

// RegisterRouter makes every route not claimed by another handler go
// through interception.
func (interceptRoute *InterceptRoute) RegisterRouter(engine *gin.Engine) {
	engine.NoRoute(interceptRoute.Intercept)
}

// Intercept godoc
// @Summary     Intercept a window request
// @Description Serves the request from the worker caches or the network. App-relative paths resolve against the scope URL; absolute-form proxy requests are accepted for the scope origin and PROXY_ALLOWED_HOSTS only.
// @Tags        interception
// @Success     200
// @Failure     403 {object} responses.ErrorResponse
// @Failure     502 {object} responses.ErrorResponse
// @Failure     503 {object} responses.ErrorResponse
// @Router      /{path} [get]
func (interceptRoute *InterceptRoute) Intercept(reqCtx *gin.Context) {
	target, err := interceptRoute.targetURL(reqCtx.Request)
	if err != nil {
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{
			Code:  "a3f1e7c0-58d2-4b96-8e14-d7c2b9f06a31",
			Error: "invalid request url",
		})
		return
	}
	if !interceptRoute.proxyAllowed(target) {
		reqCtx.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{
			Code:  "e5b09a73-2c4f-4d81-b6e2-81f3c0d75a9e",
			Error: "proxying to " + target.Scheme + "://" + target.Host + " is not allowed",
		})
		return
	}

	var body []byte
	if reqCtx.Request.Body != nil && reqCtx.Request.Method != http.MethodGet && reqCtx.Request.Method != http.MethodHead {
		body, err = io.ReadAll(reqCtx.Request.Body)
		if err != nil {
			reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{
				Code:  "4e8d0b27-91c6-4f3a-b5d2-6a1f7e93c048",
				Error: "failed to read request body",
			})
			return
		}
	}

	result, err := interceptRoute.handler.Handle(reqCtx.Request.Context(), &assetcache.Request{
		Method: reqCtx.Request.Method,
		URL:    target,
		Header: reqCtx.Request.Header.Clone(),
		Body:   body,
	})
	if err != nil {
		switch {
		case errors.Is(err, fetchscope.ErrRequestsHalted):
			reqCtx.AbortWithStatusJSON(http.StatusServiceUnavailable, responses.ErrorResponse{
				Code:  "c71b2e94-0d3a-4f58-9a6e-2b8d4f1c7e05",
				Error: "network requests are halted",
			})
		case errors.Is(err, interception.ErrCanceled):
			// the caller is gone, nobody reads the response
			reqCtx.Abort()
		default:
			reqCtx.AbortWithStatusJSON(http.StatusBadGateway, responses.ErrorResponse{
				Code:  "9f2c5d18-b7e4-4a06-8c31-e5d7a02b6f94",
				Error: "failed to fetch " + target.String(),
			})
		}
		return
	}

	resp := result.Response
	header := reqCtx.Writer.Header()
	for key, values := range resp.Header {
		// the CORS middleware already answered for this origin
		if strings.HasPrefix(http.CanonicalHeaderKey(key), "Access-Control-") {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}
	header.Set(SourceHeader, string(result.Source))
	reqCtx.Status(resp.Status)
	if reqCtx.Request.Method == http.MethodHead {
		return
	}
	if _, err := reqCtx.Writer.Write(resp.Body); err != nil {
		logger.FromContext(reqCtx.Request.Context()).Debugf("writing response for %s failed: %v", target, err)
	}
}

func (interceptRoute *InterceptRoute) targetURL(r *http.Request) (*url.URL, error) {
	if r.URL.IsAbs() {
		return r.URL, nil
	}
	// "./" keeps a first segment containing ':' from parsing as a scheme
	ref, err := url.Parse("./" + strings.TrimPrefix(r.URL.RequestURI(), "/"))
	if err != nil {
		return nil, err
	}
	return interceptRoute.handler.Base().ResolveReference(ref), nil
}

// proxyAllowed reports whether target may be fetched on the window's behalf:
// the scope origin or an origin listed in PROXY_ALLOWED_HOSTS.
func (interceptRoute *InterceptRoute) proxyAllowed(target *url.URL) bool {
	base := interceptRoute.handler.Base()
	if strings.EqualFold(target.Scheme, base.Scheme) && strings.EqualFold(target.Host, base.Host) {
		return true
	}
	origin := strings.ToLower(target.Scheme + "://" + target.Host)
	return slices.ContainsFunc(environment_variables.Current().PROXY_ALLOWED_HOSTS, func(allowed string) bool {
		return strings.ToLower(strings.TrimSuffix(allowed, "/")) == origin
	})
}
