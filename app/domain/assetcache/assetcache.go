package assetcache

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is an intercepted outbound request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Key is the cache identity of the request: its absolute URL without fragment.
func (r *Request) Key() string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Cacheable reports whether the method allows cache lookup and persistence.
func (r *Request) Cacheable() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

type FetchMode int

const (
	// FetchModeDefault forwards the caller's credentials.
	FetchModeDefault FetchMode = iota
	// FetchModeCORS sends an Origin header and omits credentials so the
	// response stays readable and measurable.
	FetchModeCORS
)

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request, mode FetchMode) (*Response, error)
}

// Response is a captured network response as stored in a cache namespace.
type Response struct {
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	StatusText string      `json:"status_text,omitempty"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	StoredAt   int64       `json:"stored_at,omitempty"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Clone returns a deep copy so a stored entry and the response handed to a
// caller never share header maps or body buffers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Stamp sets StoredAt if it is not set yet.
func (r *Response) Stamp() *Response {
	if r.StoredAt == 0 {
		r.StoredAt = time.Now().Unix()
	}
	return r
}

// Namespace is one named key-value store of request URL to response.
type Namespace interface {
	Name() string

	// Match returns nil, nil on a miss.
	Match(ctx context.Context, key string) (*Response, error)

	Put(ctx context.Context, key string, resp *Response) error

	// Delete reports whether an entry was removed.
	Delete(ctx context.Context, key string) (bool, error)

	Keys(ctx context.Context) ([]string, error)
}

// Storage holds the set of namespaces.
type Storage interface {
	// Open returns the namespace with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Namespace, error)

	Has(ctx context.Context, name string) (bool, error)

	// Names returns the existing namespace names in sorted order.
	Names(ctx context.Context) ([]string, error)

	// Delete removes the namespace and all of its entries.
	Delete(ctx context.Context, name string) (bool, error)

	HealthCheck(ctx context.Context) error

	Close() error
}

// Locker serializes lifecycle transitions between processes sharing a backend.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}
