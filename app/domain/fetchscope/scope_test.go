package fetchscope

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaltCancelsBoundContexts(t *testing.T) {
	s := NewScope()
	ctx, release := s.Bind(context.Background())
	defer release()
	require.NoError(t, ctx.Err())

	s.Halt()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not cancelled")
	}
	assert.True(t, IsHalt(ctx))
	assert.True(t, s.Halted())
}

func TestBindAfterHaltIsCancelled(t *testing.T) {
	s := NewScope()
	s.Halt()

	ctx, release := s.Bind(context.Background())
	defer release()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context bound after halt should be cancelled")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrRequestsHalted)
}

func TestRenewAllocatesFreshScope(t *testing.T) {
	s := NewScope()
	s.Renew()
	assert.Equal(t, uint64(0), s.Generation())

	s.Halt()
	s.Renew()
	assert.False(t, s.Halted())
	assert.Equal(t, uint64(1), s.Generation())

	ctx, release := s.Bind(context.Background())
	defer release()
	assert.NoError(t, ctx.Err())
}

func TestParentCancellationIsNotHalt(t *testing.T) {
	s := NewScope()
	parent, cancel := context.WithCancel(context.Background())
	ctx, release := s.Bind(parent)
	defer release()
	cancel()
	<-ctx.Done()
	assert.False(t, IsHalt(ctx))
	assert.False(t, s.Halted())
}
