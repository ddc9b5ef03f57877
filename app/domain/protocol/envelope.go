package protocol

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeVersion          MessageType = "version"
	TypeSkipWaiting      MessageType = "skipWaiting"
	TypeHaltRequests     MessageType = "haltRequests"
	TypeCloseSession     MessageType = "closeSession"
	TypeHasRoomOpen      MessageType = "hasRoomOpen"
	TypeClientState      MessageType = "clientState"
	TypeNavigate         MessageType = "navigate"
	TypeFocus            MessageType = "focus"
	TypeControllerChange MessageType = "controllerChange"
)

// Envelope is the single wire shape for both directions. A message carries
// Type and, when it expects an answer, ID. A reply carries ReplyTo.
type Envelope struct {
	Type    MessageType     `json:"type,omitempty"`
	ID      int64           `json:"id,omitempty"`
	ReplyTo int64           `json:"replyTo,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) IsReply() bool {
	return e.ReplyTo != 0
}

// Blocking reports whether handling the message waits on other clients or
// on a lifecycle transition. Everything else is handled in arrival order.
func (e Envelope) Blocking() bool {
	if e.IsReply() {
		return false
	}
	switch e.Type {
	case TypeHaltRequests, TypeCloseSession, TypeSkipWaiting:
		return true
	}
	return false
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildHash string `json:"buildHash"`
}

type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

type RoomPayload struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
}

type NavigatePayload struct {
	URL string `json:"url"`
}
