package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
)

// replyTimeout is the bound used throughout these tests.
const replyTimeout = 200 * time.Millisecond

type fakeConn struct {
	mu     sync.Mutex
	sent   []Envelope
	onSend func(Envelope)
}

func (f *fakeConn) Send(env Envelope) error {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	cb := f.onSend
	f.mu.Unlock()
	if cb != nil {
		go cb(env)
	}
	return nil
}

func (f *fakeConn) Close() error {
	return nil
}

func (f *fakeConn) received(msgType MessageType) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeConn) replies() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.sent {
		if env.IsReply() {
			out = append(out, env)
		}
	}
	return out
}

type fakeLifecycle struct {
	mu      sync.Mutex
	skipped int
}

func (f *fakeLifecycle) Version() VersionInfo {
	return VersionInfo{Version: "0.5.0", BuildHash: "abc123"}
}

func (f *fakeLifecycle) SkipWaiting(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipped++
	return nil
}

type harness struct {
	registry   *Registry
	messenger  *Messenger
	scope      *fetchscope.Scope
	dispatcher *Dispatcher
	lifecycle  *fakeLifecycle
}

func newHarness() *harness {
	h := &harness{
		registry:  NewRegistry(),
		messenger: NewMessengerWithTimeout(replyTimeout),
		scope:     fetchscope.NewScope(),
		lifecycle: &fakeLifecycle{},
	}
	coordinator := NewCoordinator(h.registry, h.messenger, h.scope)
	h.dispatcher = NewDispatcher(h.registry, h.messenger, coordinator, h.lifecycle)
	return h
}

// connect registers a client whose conn answers every message through
// answer. A nil answer makes the client silent.
func (h *harness) connect(clientType ClientType, answer func(Envelope) any) (*Client, *fakeConn) {
	conn := &fakeConn{}
	c := NewClient(clientType, conn, ClientState{URL: "https://app.example.org/#/session/s1", Focused: true})
	if answer != nil {
		conn.onSend = func(env Envelope) {
			if env.ID == 0 {
				return
			}
			payload, _ := encodePayload(answer(env))
			h.dispatcher.Dispatch(context.Background(), c, Envelope{ReplyTo: env.ID, Payload: payload})
		}
	}
	h.registry.Register(c)
	return c, conn
}

func TestVersionRepliesImmediately(t *testing.T) {
	h := newHarness()
	c, conn := h.connect(ClientTypeWindow, nil)

	h.dispatcher.Dispatch(context.Background(), c, Envelope{Type: TypeVersion, ID: 7})

	replies := conn.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, int64(7), replies[0].ReplyTo)
	var v VersionInfo
	require.NoError(t, json.Unmarshal(replies[0].Payload, &v))
	assert.Equal(t, "abc123", v.BuildHash)
}

func TestSkipWaitingHasNoReply(t *testing.T) {
	h := newHarness()
	c, conn := h.connect(ClientTypeWindow, nil)

	h.dispatcher.Dispatch(context.Background(), c, Envelope{Type: TypeSkipWaiting, ID: 3})

	assert.Equal(t, 1, h.lifecycle.skipped)
	assert.Empty(t, conn.replies())
}

func TestHaltRequestsHaltsOnlyAfterEveryWindowAcknowledged(t *testing.T) {
	h := newHarness()
	var mu sync.Mutex
	var haltedAtAck []bool
	ack := func(env Envelope) any {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		haltedAtAck = append(haltedAtAck, h.scope.Halted())
		mu.Unlock()
		return nil
	}
	_, w1 := h.connect(ClientTypeWindow, ack)
	_, w2 := h.connect(ClientTypeWindow, ack)
	_, worker := h.connect(ClientTypeWorker, ack)
	issuer, issuerConn := h.connect(ClientTypeWindow, ack)

	h.dispatcher.Dispatch(context.Background(), issuer, Envelope{Type: TypeHaltRequests, ID: 42})

	assert.True(t, h.scope.Halted())
	assert.Equal(t, []bool{false, false, false}, haltedAtAck)
	assert.Len(t, w1.received(TypeHaltRequests), 1)
	assert.Len(t, w2.received(TypeHaltRequests), 1)
	assert.Len(t, issuerConn.received(TypeHaltRequests), 1)
	assert.Empty(t, worker.received(TypeHaltRequests))

	replies := issuerConn.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, int64(42), replies[0].ReplyTo)

	bound, release := h.scope.Bind(context.Background())
	defer release()
	assert.Error(t, bound.Err())
}

func TestCloseSessionWaitsForEveryOtherWindow(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	c1, c1Conn := h.connect(ClientTypeWindow, func(Envelope) any { return nil })
	_, c2Conn := h.connect(ClientTypeWindow, func(Envelope) any { return nil })
	_, c3Conn := h.connect(ClientTypeWindow, func(Envelope) any {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		payload, _ := json.Marshal(SessionPayload{SessionID: "s1"})
		h.dispatcher.Dispatch(context.Background(), c1, Envelope{Type: TypeCloseSession, ID: 9, Payload: payload})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(c2Conn.received(TypeCloseSession)) == 1 && len(c3Conn.received(TypeCloseSession)) == 1
	}, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("closeSession resolved before C3 acknowledged")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, c1Conn.replies())

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closeSession did not resolve")
	}

	assert.Empty(t, c1Conn.received(TypeCloseSession))
	replies := c1Conn.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, int64(9), replies[0].ReplyTo)

	var p SessionPayload
	require.NoError(t, c2Conn.received(TypeCloseSession)[0].Decode(&p))
	assert.Equal(t, "s1", p.SessionID)
}

func TestSendAndWaitForReplyTimesOut(t *testing.T) {
	h := newHarness()
	c, _ := h.connect(ClientTypeWindow, nil)

	start := time.Now()
	_, err := h.messenger.SendAndWaitForReply(context.Background(), c, TypeHasRoomOpen, RoomPayload{SessionID: "s1", RoomID: "!r1"})
	assert.ErrorIs(t, err, ErrReplyTimeout)
	assert.GreaterOrEqual(t, time.Since(start), replyTimeout)
	assert.Equal(t, 0, h.messenger.Pending())
}

func TestSendAndWaitForReplyEndsOnDisconnect(t *testing.T) {
	h := newHarness()
	h.messenger = NewMessengerWithTimeout(0)
	c, conn := h.connect(ClientTypeWindow, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := h.messenger.SendAndWaitForReply(context.Background(), c, TypeHasRoomOpen, nil)
		errc <- err
	}()
	require.Eventually(t, func() bool { return len(conn.received(TypeHasRoomOpen)) == 1 }, time.Second, 5*time.Millisecond)
	h.registry.Unregister(c.ID)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClientGone)
	case <-time.After(time.Second):
		t.Fatal("wait did not end on disconnect")
	}
	assert.Equal(t, 0, h.messenger.Pending())
}

func TestHaltTreatsSilentWindowAsAcknowledged(t *testing.T) {
	h := newHarness()
	h.connect(ClientTypeWindow, nil)
	h.connect(ClientTypeWindow, func(Envelope) any { return nil })

	coordinator := NewCoordinator(h.registry, h.messenger, h.scope)
	require.NoError(t, coordinator.HaltRequests(context.Background()))
	assert.True(t, h.scope.Halted())
}

func TestHaltAbortsWhenCallerCancels(t *testing.T) {
	h := newHarness()
	h.messenger = NewMessengerWithTimeout(0)
	h.connect(ClientTypeWindow, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	coordinator := NewCoordinator(h.registry, h.messenger, h.scope)
	err := coordinator.HaltRequests(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, h.scope.Halted())
}

func TestResolveIgnoresUnknownIds(t *testing.T) {
	m := NewMessengerWithTimeout(replyTimeout)
	assert.False(t, m.Resolve(99, nil))
}

func TestClientStateUpdate(t *testing.T) {
	h := newHarness()
	c, _ := h.connect(ClientTypeWindow, nil)
	payload := json.RawMessage(`{"visibilityState":"hidden","url":"https://app.example.org/#/session/s2"}`)

	h.dispatcher.Dispatch(context.Background(), c, Envelope{Type: TypeClientState, Payload: payload})

	s := c.State()
	assert.Equal(t, VisibilityHidden, s.VisibilityState)
	assert.Equal(t, "https://app.example.org/#/session/s2", s.URL)
	assert.True(t, s.Focused)
	assert.False(t, c.Visible())
}

func TestRegistryMatchAllKeepsConnectionOrder(t *testing.T) {
	r := NewRegistry()
	a := NewClient(ClientTypeWindow, &fakeConn{}, ClientState{})
	b := NewClient(ClientTypeWorker, &fakeConn{}, ClientState{})
	c := NewClient(ClientTypeWindow, &fakeConn{}, ClientState{})
	r.Register(a)
	r.Register(b)
	r.Register(c)

	assert.Equal(t, []*Client{a, c}, r.MatchAll(ClientTypeWindow))
	assert.Equal(t, []*Client{a, b, c}, r.MatchAll(""))

	r.Unregister(a.ID)
	_, ok := r.Get(a.ID)
	assert.False(t, ok)
	select {
	case <-a.Done():
	default:
		t.Fatal("unregistered client should be done")
	}
}
