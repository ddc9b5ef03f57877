package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hydrogen.im/hydrogen-worker/app/domain/cron"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/domain/healthcheck"
	"hydrogen.im/hydrogen-worker/app/domain/interception"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/domain/manifest"
	"hydrogen.im/hydrogen-worker/app/domain/notification"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/app/infrastructure/cache"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/intercept"
	v1 "hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/admin"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/notifications"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/v1/push"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/routes/worker"
	"hydrogen.im/hydrogen-worker/app/utils/httpclients/origin"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
	"resty.dev/v3"
)

type upstream struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{calls: make(map[string]int)}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls[r.URL.Path]++
		u.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		fmt.Fprintf(w, "asset:%s", r.URL.Path)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

type testServer struct {
	*httptest.Server
	handler  http.Handler
	upstream *upstream
	scope    *fetchscope.Scope
	center   *notification.Center
	registry *protocol.Registry
}

// withEnv swaps in a modified configuration for the duration of the test.
func withEnv(t *testing.T, modify func(env *environment_variables.EnvironmentVariable)) {
	t.Helper()
	env := *environment_variables.Current()
	modify(&env)
	prev := environment_variables.Replace(env)
	t.Cleanup(func() { environment_variables.Replace(*prev) })
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	up := newUpstream(t)
	base, err := url.Parse(up.URL + "/")
	require.NoError(t, err)

	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`{
		"version": "0.5.0",
		"build_hash": "abc123",
		"unhashed_precached": ["index.html"],
		"hashed_precached": ["assets/main-1a2b.js"],
		"hashed_cached_on_request": ["assets/font-9f8e.woff2"]
	}`), 0o644))

	rest := resty.New()
	t.Cleanup(func() { rest.Close() })
	fetcher := origin.NewClientWithResty(rest, base)
	storage := cache.NewMemoryCacheStorage()
	scope := fetchscope.NewScope()
	registry := protocol.NewRegistry()
	messenger := protocol.NewMessengerWithTimeout(time.Second)

	manager := lifecycle.NewManagerWithBase(storage, storage.Locker(), fetcher, scope, registry, messenger, base)
	watcher := cron.NewService(manifest.NewLoaderFromPath(manifestPath), manager)
	require.NoError(t, watcher.CheckManifest(context.Background()))

	coordinator := protocol.NewCoordinator(registry, messenger, scope)
	dispatcher := protocol.NewDispatcher(registry, messenger, coordinator, manager)
	handler := interception.NewHandlerWithBase(storage, fetcher, scope, manager, base, "index.html")
	center := notification.NewCenter()
	engine := notification.NewEngineWithBase(center, registry, messenger, notification.NewEventOpener(center), base)

	server := NewHttpServer(
		v1.NewV1Route(
			push.NewPushRoute(engine),
			notifications.NewNotificationsRoute(engine),
			admin.NewAdminRoute(admin.NewCacheRoute(storage), admin.NewLifecycleRoute(manager, watcher)),
			manager,
		),
		worker.NewWorkerRoute(dispatcher, manager),
		intercept.NewInterceptRoute(handler),
		healthcheck.NewService(storage),
	)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, handler: server.Handler(), upstream: up, scope: scope, center: center, registry: registry}
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (s *testServer) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/worker/ws?" + query
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.get(t, "/health-check")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRootServedFromPrecache(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "asset:/index.html", body)
	assert.Equal(t, string(interception.SourceUnhashed), resp.Header.Get(intercept.SourceHeader))

	resp, _ = s.get(t, "/index.html")
	assert.Equal(t, string(interception.SourceUnhashed), resp.Header.Get(intercept.SourceHeader))
	assert.Equal(t, 1, s.upstream.count("/index.html"))
}

func TestCachedOnRequestAsset(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.get(t, "/assets/font-9f8e.woff2")
	assert.Equal(t, string(interception.SourceNetwork), resp.Header.Get(intercept.SourceHeader))
	resp, body := s.get(t, "/assets/font-9f8e.woff2")
	assert.Equal(t, string(interception.SourceHashed), resp.Header.Get(intercept.SourceHeader))
	assert.Equal(t, "asset:/assets/font-9f8e.woff2", body)
	assert.Equal(t, 1, s.upstream.count("/assets/font-9f8e.woff2"))
}

func TestVersion(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.get(t, "/v1/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v v1.VersionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	assert.Equal(t, "0.5.0", v.Version)
	assert.Equal(t, "abc123", v.BuildHash)
}

func TestPushShowsNotification(t *testing.T) {
	s := newTestServer(t)
	payload := `{"session_id":"s1","sender":"Alice","room_id":"!r1","event_id":"e1","content":{"body":"hi"}}`

	resp, err := http.Post(s.URL+"/v1/push", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := s.get(t, "/v1/notifications?tag=new_message")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Result []notification.Notification `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Result, 1)
	assert.Equal(t, "Alice wrote you", list.Result[0].Title)

	req, err := http.NewRequest(http.MethodDelete, s.URL+"/v1/notifications/"+list.Result[0].ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, s.center.List(""))

	resp, err = http.Post(s.URL+"/v1/notifications/not-an-id/click", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminListsCaches(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.get(t, "/v1/admin/caches")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Result []admin.CacheNamespaceResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	entries := make(map[string]int)
	for _, ns := range list.Result {
		entries[ns.Name] = ns.Entries
	}
	assert.Equal(t, 1, entries["hydrogen-assets-abc123"])
	assert.Equal(t, 1, entries[manifest.HashedCacheName])
}

func TestWebSocketVersionAndHalt(t *testing.T) {
	s := newTestServer(t)
	window := s.dial(t, "type=window&url=%2F%23%2Fsession%2Fs1&focused=true")
	cli := s.dial(t, "type=worker")

	require.NoError(t, window.WriteJSON(protocol.Envelope{Type: protocol.TypeVersion, ID: 1}))
	reply := readEnvelope(t, window)
	assert.Equal(t, int64(1), reply.ReplyTo)
	var info protocol.VersionInfo
	require.NoError(t, json.Unmarshal(reply.Payload, &info))
	assert.Equal(t, "abc123", info.BuildHash)

	require.NoError(t, cli.WriteJSON(protocol.Envelope{Type: protocol.TypeHaltRequests, ID: 2}))
	halt := readEnvelope(t, window)
	require.Equal(t, protocol.TypeHaltRequests, halt.Type)
	assert.False(t, s.scope.Halted())
	require.NoError(t, window.WriteJSON(protocol.Envelope{ReplyTo: halt.ID}))

	done := readEnvelope(t, cli)
	assert.Equal(t, int64(2), done.ReplyTo)
	assert.True(t, s.scope.Halted())

	resp, _ := s.get(t, "/config.json")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, s.upstream.count("/config.json"))
}

func TestWebSocketClientStateAppliesInOrder(t *testing.T) {
	s := newTestServer(t)
	window := s.dial(t, "type=window&url=%2F%23%2Fsession%2Fs1&focused=true")

	for i := 0; i < 20; i++ {
		focused := i%2 == 0
		payload, err := json.Marshal(protocol.ClientStateUpdate{Focused: &focused})
		require.NoError(t, err)
		require.NoError(t, window.WriteJSON(protocol.Envelope{Type: protocol.TypeClientState, Payload: payload}))
	}
	// the reply can only be written after every earlier update was applied
	require.NoError(t, window.WriteJSON(protocol.Envelope{Type: protocol.TypeVersion, ID: 1}))
	reply := readEnvelope(t, window)
	require.Equal(t, int64(1), reply.ReplyTo)

	windows := s.registry.MatchAll(protocol.ClientTypeWindow)
	require.Len(t, windows, 1)
	assert.False(t, windows[0].State().Focused)
}

func TestWebSocketWorkerRequiresAdminToken(t *testing.T) {
	withEnv(t, func(env *environment_variables.EnvironmentVariable) {
		env.ADMIN_JWT_SECRET = []byte("s3cret")
	})
	s := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL("type=worker"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "workerctl"}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(s.wsURL("type=worker"), http.Header{"Authorization": {"Bearer " + forged}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, s.registry.Len())

	// windows connect without a token
	s.dial(t, "type=window&url=%2F")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "workerctl",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	cli, _, err := websocket.DefaultDialer.Dial(s.wsURL("type=worker"), http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	defer cli.Close()

	require.NoError(t, cli.WriteJSON(protocol.Envelope{Type: protocol.TypeVersion, ID: 1}))
	assert.Equal(t, int64(1), readEnvelope(t, cli).ReplyTo)
}

func TestInterceptRejectsUnlistedProxyTargets(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "png")
	}))
	defer media.Close()
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://internal.invalid/secret", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	thumbnail := media.URL + "/_matrix/media/r0/thumbnail/hs/abc?width=32&height=32"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, thumbnail, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the scope origin itself is always allowed
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, s.upstream.URL+"/assets/main-1a2b.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(interception.SourceHashed), rec.Header().Get(intercept.SourceHeader))

	withEnv(t, func(env *environment_variables.EnvironmentVariable) {
		env.PROXY_ALLOWED_HOSTS = []string{media.URL + "/"}
	})
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, thumbnail, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}

func TestInterceptAnswersCORSOnce(t *testing.T) {
	withEnv(t, func(env *environment_variables.EnvironmentVariable) {
		env.ALLOWED_CORS_HOSTS = []string{"https://app.example"}
	})
	s := newTestServer(t)

	// network, then the on-request cache, then an uncached passthrough
	for _, path := range []string{"/assets/font-9f8e.woff2", "/assets/font-9f8e.woff2", "/config.json"} {
		req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://app.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, []string{"https://app.example"}, resp.Header.Values("Access-Control-Allow-Origin"), path)
	}
}
