package protocol

import (
	"context"

	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

// Lifecycle is what the dispatcher needs from the lifecycle manager.
type Lifecycle interface {
	Version() VersionInfo
	SkipWaiting(ctx context.Context) error
}

// Dispatcher handles messages arriving from connected clients.
type Dispatcher struct {
	registry    *Registry
	messenger   *Messenger
	coordinator *Coordinator
	lifecycle   Lifecycle
}

func NewDispatcher(registry *Registry, messenger *Messenger, coordinator *Coordinator, lifecycle Lifecycle) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		messenger:   messenger,
		coordinator: coordinator,
		lifecycle:   lifecycle,
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles one message from client. It blocks for the messages
// whose Blocking reports true; transports run only those on their own
// goroutine so a client's state updates and replies apply in order.
func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, env Envelope) {
	log := logger.GetLogger()
	if env.IsReply() {
		if !d.messenger.Resolve(env.ReplyTo, env.Payload) {
			log.Debugf("reply %d from %s matches no pending message", env.ReplyTo, client.ID)
		}
		return
	}

	switch env.Type {
	case TypeVersion:
		d.reply(client, env, d.lifecycle.Version())
	case TypeSkipWaiting:
		if err := d.lifecycle.SkipWaiting(ctx); err != nil {
			log.Errorf("skipWaiting from %s failed: %v", client.ID, err)
		}
	case TypeHaltRequests:
		if err := d.coordinator.HaltRequests(ctx); err != nil {
			log.Errorf("haltRequests from %s failed: %v", client.ID, err)
		}
		d.reply(client, env, nil)
	case TypeCloseSession:
		var p SessionPayload
		if err := env.Decode(&p); err != nil {
			log.Warnf("closeSession from %s: %v", client.ID, err)
		} else if err := d.coordinator.CloseSession(ctx, p.SessionID, client.ID); err != nil {
			log.Errorf("closeSession %s from %s failed: %v", p.SessionID, client.ID, err)
		}
		d.reply(client, env, nil)
	case TypeClientState:
		var u ClientStateUpdate
		if err := env.Decode(&u); err != nil {
			log.Warnf("clientState from %s: %v", client.ID, err)
			return
		}
		client.Update(u)
	default:
		log.Debugf("ignoring message %q from %s", env.Type, client.ID)
	}
}

func (d *Dispatcher) reply(client *Client, env Envelope, payload any) {
	if err := d.messenger.Reply(client, env.ID, payload); err != nil {
		logger.GetLogger().Warnf("reply to %s %d failed: %v", env.Type, env.ID, err)
	}
}
