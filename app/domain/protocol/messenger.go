package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

var (
	ErrReplyTimeout = errors.New("no reply before timeout")
	ErrClientGone   = errors.New("client disconnected")
)

// Messenger owns the pending reply table.
type Messenger struct {
	nextID  atomic.Int64
	timeout time.Duration

	mu      sync.Mutex
	pending map[int64]chan json.RawMessage
}

func NewMessenger() *Messenger {
	return NewMessengerWithTimeout(environment_variables.Current().REPLY_TIMEOUT)
}

// NewMessengerWithTimeout bounds every SendAndWaitForReply by timeout. Zero
// disables the bound.
func NewMessengerWithTimeout(timeout time.Duration) *Messenger {
	return &Messenger{
		timeout: timeout,
		pending: make(map[int64]chan json.RawMessage),
	}
}

func (m *Messenger) Timeout() time.Duration {
	return m.timeout
}

// Post sends a message that expects no reply.
func (m *Messenger) Post(c *Client, msgType MessageType, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return c.Send(Envelope{Type: msgType, Payload: raw})
}

// Reply answers the message with the given id. Messages sent without an id
// get no reply.
func (m *Messenger) Reply(c *Client, id int64, payload any) error {
	if id == 0 {
		return nil
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return c.Send(Envelope{ReplyTo: id, Payload: raw})
}

// SendAndWaitForReply sends a message under a fresh correlation id and
// waits for the matching reply, the timeout, the client's disconnect or
// ctx, whichever comes first.
func (m *Messenger) SendAndWaitForReply(ctx context.Context, c *Client, msgType MessageType, payload any) (json.RawMessage, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	id := m.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()
	defer m.forget(id)

	if err := c.Send(Envelope{Type: msgType, ID: id, Payload: raw}); err != nil {
		return nil, fmt.Errorf("%w: send %s: %v", ErrClientGone, msgType, err)
	}

	var timeout <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.Done():
		return nil, fmt.Errorf("%w: %s", ErrClientGone, c.ID)
	case <-timeout:
		return nil, fmt.Errorf("%w: %s to %s after %s", ErrReplyTimeout, msgType, c.ID, m.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers a reply. It reports false for unknown or already
// resolved ids.
func (m *Messenger) Resolve(replyTo int64, payload json.RawMessage) bool {
	m.mu.Lock()
	ch, ok := m.pending[replyTo]
	delete(m.pending, replyTo)
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

func (m *Messenger) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Messenger) forget(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
