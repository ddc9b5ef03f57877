package contextkeys

// RequestId holds the X-Request-ID of the request being served.
type RequestId struct{}
