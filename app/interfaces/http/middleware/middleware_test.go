package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

func newEngine(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(LoggerMiddleware(logrus.New()))
	engine.GET("/guarded", JWTAuth(func() []byte { return secret }), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return engine
}

func signed(t *testing.T, secret []byte, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "push-gateway",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJWTAuthDisabledWithoutSecret(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("s3cret")
	engine := newEngine(secret)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, []byte("other"), jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"wrong method", "Bearer " + signed(t, secret, jwt.SigningMethodHS512), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, secret, jwt.SigningMethodHS256), http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, c.want, rec.Code)
		})
	}
}

func TestLoggerKeepsIncomingRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	env := *environment_variables.Current()
	env.ALLOWED_CORS_HOSTS = []string{"https://app.example.org"}
	prev := environment_variables.Replace(env)
	defer environment_variables.Replace(*prev)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS())
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, "intercepted")
	})

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/push", nil)
	preflight.Header.Set("Origin", "https://app.example.org")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	// a plain OPTIONS is an ordinary request to intercept
	plain := httptest.NewRequest(http.MethodOptions, "/config.json", nil)
	plain.Header.Set("Origin", "https://app.example.org")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, plain)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "X-Request-ID, X-Worker-Source", rec.Header().Get("Access-Control-Expose-Headers"))

	other := httptest.NewRequest(http.MethodOptions, "/v1/push", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	other.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
