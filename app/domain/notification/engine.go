package notification

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

const messagesReadTitle = "New messages that have since been read"

// WindowOpener opens a new application window at an absolute URL.
type WindowOpener interface {
	OpenWindow(ctx context.Context, url string) error
}

type Engine struct {
	center    *Center
	registry  *protocol.Registry
	messenger *protocol.Messenger
	opener    WindowOpener
	base      *url.URL
}

func NewEngine(center *Center, registry *protocol.Registry, messenger *protocol.Messenger, opener WindowOpener) (*Engine, error) {
	base, err := environment_variables.Current().ScopeURL()
	if err != nil {
		return nil, err
	}
	return NewEngineWithBase(center, registry, messenger, opener, base), nil
}

func NewEngineWithBase(center *Center, registry *protocol.Registry, messenger *protocol.Messenger, opener WindowOpener, base *url.URL) *Engine {
	return &Engine{
		center:    center,
		registry:  registry,
		messenger: messenger,
		opener:    opener,
		base:      base,
	}
}

func (e *Engine) Center() *Center {
	return e.center
}

func (e *Engine) HandlePush(ctx context.Context, p PushPayload) error {
	switch {
	case p.IsNewMessage():
		return e.handleNewMessage(ctx, p)
	case p.IsReadSync():
		return e.handleReadSync(p)
	default:
		logger.GetLogger().Debugf("ignoring push for session %s", p.SessionID)
		return nil
	}
}

func (e *Engine) handleNewMessage(ctx context.Context, p PushPayload) error {
	log := logger.GetLogger().WithField("room_id", p.RoomID)
	if e.hasFocusedClientOnRoom(ctx, p.SessionID, p.RoomID) {
		log.Debug("room is open in a focused window, not notifying")
		return nil
	}
	_, err := e.center.Replace(p.Title(), p.Body(), TagNewMessage, Data{SessionID: p.SessionID, RoomID: p.RoomID},
		func(n *Notification) bool { return n.Data.RoomID == p.RoomID })
	return err
}

func (e *Engine) handleReadSync(p PushPayload) error {
	e.center.CloseWhere(func(n *Notification) bool { return n.Tag != TagMessagesRead })
	for _, c := range e.registry.MatchAll(protocol.ClientTypeWindow) {
		if c.Visible() {
			return nil
		}
	}
	_, _, err := e.center.ShowUnlessTagged(messagesReadTitle, "", TagMessagesRead, Data{SessionID: p.SessionID})
	return err
}

// hasFocusedClientOnRoom asks each visible and focused window, one after
// another, whether it shows the room. A failed query counts as no.
func (e *Engine) hasFocusedClientOnRoom(ctx context.Context, sessionID, roomID string) bool {
	query := protocol.RoomPayload{SessionID: sessionID, RoomID: roomID}
	for _, c := range e.registry.MatchAll(protocol.ClientTypeWindow) {
		if !c.VisibleAndFocused() {
			continue
		}
		reply, err := e.messenger.SendAndWaitForReply(ctx, c, protocol.TypeHasRoomOpen, query)
		if err != nil {
			logger.GetLogger().Warnf("hasRoomOpen to %s failed: %v", c.ID, err)
			continue
		}
		var open bool
		if err := json.Unmarshal(reply, &open); err != nil {
			continue
		}
		if open {
			return true
		}
	}
	return false
}

// HandleClick closes the notification and shows its target, reusing a
// window already on the session when there is one.
func (e *Engine) HandleClick(ctx context.Context, id string) error {
	n, ok := e.center.Get(id)
	if !ok {
		return ErrNotificationNotFound
	}
	e.center.Close(id)

	sessionHash := "#/session/" + n.Data.SessionID
	target := "/" + sessionHash
	if n.Data.RoomID != "" {
		target = "/" + sessionHash + "/room/" + n.Data.RoomID
	}

	for _, c := range e.registry.MatchAll(protocol.ClientTypeWindow) {
		u, err := e.base.Parse(c.State().URL)
		if err != nil || !strings.HasPrefix("#"+u.Fragment, sessionHash) {
			continue
		}
		if err := e.messenger.Post(c, protocol.TypeNavigate, protocol.NavigatePayload{URL: target}); err != nil {
			logger.GetLogger().Warnf("navigate %s failed: %v", c.ID, err)
			continue
		}
		if err := e.messenger.Post(c, protocol.TypeFocus, nil); err != nil {
			logger.GetLogger().Warnf("focus %s failed: %v", c.ID, err)
		}
		return nil
	}

	ref, err := url.Parse(target)
	if err != nil {
		return err
	}
	return e.opener.OpenWindow(ctx, e.base.ResolveReference(ref).String())
}
