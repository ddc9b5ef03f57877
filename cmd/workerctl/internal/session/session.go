package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
)

// Session is a worker-type connection to a running hydrogen-worker. It is
// not safe for concurrent Requests.
type Session struct {
	conn   *websocket.Conn
	nextID atomic.Int64
}

// WebSocketURL turns an http(s) base address into the worker socket URL.
func WebSocketURL(addr string) (string, error) {
	u, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/worker/ws"
	u.RawQuery = url.Values{"type": {string(protocol.ClientTypeWorker)}}.Encode()
	return u.String(), nil
}

// Dial connects as a worker client. A non-empty token is sent as a bearer
// token; the server requires one when it has an admin secret.
func Dial(ctx context.Context, addr string, token string) (*Session, error) {
	wsURL, err := WebSocketURL(addr)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %w (%s)", wsURL, err, resp.Status)
		}
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}
	return &Session{conn: conn}, nil
}

// Request sends msgType and blocks until its reply arrives. Requests the
// worker sends in the meantime are acknowledged with an empty reply.
func (s *Session) Request(ctx context.Context, msgType protocol.MessageType, payload any) (json.RawMessage, error) {
	env := protocol.Envelope{Type: msgType, ID: s.nextID.Add(1)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	if err := s.conn.WriteJSON(env); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	for {
		var in protocol.Envelope
		if err := s.conn.ReadJSON(&in); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("waiting for %s reply: %w", msgType, err)
		}
		if in.IsReply() {
			if in.ReplyTo == env.ID {
				return in.Payload, nil
			}
			continue
		}
		if in.ID != 0 {
			if err := s.conn.WriteJSON(protocol.Envelope{ReplyTo: in.ID}); err != nil {
				return nil, fmt.Errorf("ack %s: %w", in.Type, err)
			}
		}
	}
}

// Post sends msgType without waiting for an answer.
func (s *Session) Post(msgType protocol.MessageType) error {
	return s.conn.WriteJSON(protocol.Envelope{Type: msgType})
}

func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
