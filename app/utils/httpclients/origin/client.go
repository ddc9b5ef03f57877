package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/utils/httpclients"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
	"resty.dev/v3"
)

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
	"Accept-Encoding",
}

var credentialHeaders = []string{
	"Cookie",
	"Authorization",
}

// Client fetches requests from the network on behalf of windows.
type Client struct {
	rest   *resty.Client
	origin string
}

func NewClient() (*Client, func(), error) {
	scope, err := environment_variables.Current().ScopeURL()
	if err != nil {
		return nil, nil, err
	}
	client := NewClientWithResty(httpclients.NewClient("OriginClient"), scope)
	return client, func() { client.rest.Close() }, nil
}

func NewClientWithResty(rest *resty.Client, scope *url.URL) *Client {
	return &Client{
		rest:   rest,
		origin: scope.Scheme + "://" + scope.Host,
	}
}

// StripAccessControl drops the upstream's CORS headers. The worker answers
// cross-origin checks for its own origin, not the upstream's.
func StripAccessControl(header http.Header) {
	for key := range header {
		if strings.HasPrefix(key, "Access-Control-") {
			header.Del(key)
		}
	}
}

func (c *Client) Fetch(ctx context.Context, req *assetcache.Request, mode assetcache.FetchMode) (*assetcache.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := c.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	for key, values := range req.Header {
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		r.Header.Del(h)
	}
	if mode == assetcache.FetchModeCORS {
		for _, h := range credentialHeaders {
			r.Header.Del(h)
		}
		r.Header.Set("Origin", c.origin)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	target := req.URL.String()
	resp, err := r.Execute(method, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", method, target, err)
	}
	raw := resp.RawResponse
	defer raw.Body.Close()

	body, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", target, err)
	}

	header := raw.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	if raw.Uncompressed {
		header.Del("Content-Encoding")
	}
	StripAccessControl(header)

	return &assetcache.Response{
		URL:        target,
		Status:     raw.StatusCode,
		StatusText: http.StatusText(raw.StatusCode),
		Header:     header,
		Body:       body,
	}, nil
}
