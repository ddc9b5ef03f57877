// Package fetchscope provides the shared cancellation scope that every
// network fetch of the interception handler is bound to.
//
// Halting the scope cancels all bound fetches and makes later Bind calls
// return already-cancelled contexts. The scope stays halted until Renew,
// which the lifecycle manager calls when a generation activates.
package fetchscope

import (
	"context"
	"errors"
	"sync"
)

var ErrRequestsHalted = errors.New("network requests halted")

type Scope struct {
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelCauseFunc
	generation uint64
}

func NewScope() *Scope {
	s := &Scope{}
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	return s
}

// Bind derives a context from parent that is also cancelled, with cause
// ErrRequestsHalted, when the scope is halted. Call release when the fetch
// is done.
func (s *Scope) Bind(parent context.Context) (context.Context, func()) {
	s.mu.Lock()
	scopeCtx := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithCancelCause(parent)
	if scopeCtx.Err() != nil {
		cancel(context.Cause(scopeCtx))
		return ctx, func() {}
	}
	stop := context.AfterFunc(scopeCtx, func() {
		cancel(context.Cause(scopeCtx))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Halt cancels every fetch bound to the current scope. Irreversible until Renew.
func (s *Scope) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel(ErrRequestsHalted)
}

// Renew replaces a halted scope with a fresh one. A live scope is kept.
func (s *Scope) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() == nil {
		return
	}
	s.ctx, s.cancel = context.WithCancelCause(context.Background())
	s.generation++
}

func (s *Scope) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Err() != nil
}

func (s *Scope) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// IsHalt reports whether ctx ended because a scope was halted.
func IsHalt(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrRequestsHalted)
}
