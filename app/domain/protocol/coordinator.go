package protocol

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"hydrogen.im/hydrogen-worker/app/domain/fetchscope"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

// Coordinator runs the two-phase commands: broadcast, wait for every
// acknowledgment, then act locally.
type Coordinator struct {
	registry  *Registry
	messenger *Messenger
	scope     *fetchscope.Scope
}

func NewCoordinator(registry *Registry, messenger *Messenger, scope *fetchscope.Scope) *Coordinator {
	return &Coordinator{
		registry:  registry,
		messenger: messenger,
		scope:     scope,
	}
}

// HaltRequests asks every window to stop issuing requests and only after
// all of them acknowledged halts the fetch scope.
func (c *Coordinator) HaltRequests(ctx context.Context) error {
	windows := c.registry.MatchAll(ClientTypeWindow)
	if err := c.barrier(ctx, windows, TypeHaltRequests, nil); err != nil {
		return err
	}
	c.scope.Halt()
	logger.GetLogger().Infof("halted network requests after %d acknowledgments", len(windows))
	return nil
}

// CloseSession asks every window except the requester to release the
// session and waits until all of them did.
func (c *Coordinator) CloseSession(ctx context.Context, sessionID string, requesterID string) error {
	var others []*Client
	for _, w := range c.registry.MatchAll(ClientTypeWindow) {
		if w.ID != requesterID {
			others = append(others, w)
		}
	}
	return c.barrier(ctx, others, TypeCloseSession, SessionPayload{SessionID: sessionID})
}

// barrier waits for a reply from each of the enumerated clients. A client
// that disconnects or does not answer in time counts as acknowledged.
func (c *Coordinator) barrier(ctx context.Context, clients []*Client, msgType MessageType, payload any) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		g.Go(func() error {
			_, err := c.messenger.SendAndWaitForReply(gctx, client, msgType, payload)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrClientGone), errors.Is(err, ErrReplyTimeout):
				logger.GetLogger().Warnf("%s: treating %s as acknowledged: %v", msgType, client.ID, err)
				return nil
			default:
				return err
			}
		})
	}
	return g.Wait()
}
