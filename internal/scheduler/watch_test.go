package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/taskmesh/internal/bus"
	"github.com/relayforge/taskmesh/internal/engine"
)

func TestWatchQueue_EmitsInitialSnapshotImmediately(t *testing.T) {
	store := newTestStore(t)
	sched := New(store)
	eventBus := bus.NewChannelBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := sched.WatchQueue(ctx, eventBus, "ns-1", 50*time.Millisecond)
	require.NoError(t, err)

	select {
	case jobs := <-out:
		assert.Empty(t, jobs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}
}

func TestWatchQueue_DebouncesBurstOfTicks(t *testing.T) {
	store := newTestStore(t)
	sched := New(store)
	eventBus := bus.NewChannelBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := sched.WatchQueue(ctx, eventBus, "ns-1", 100*time.Millisecond)
	require.NoError(t, err)
	<-out // drain initial snapshot

	for i := 0; i < 5; i++ {
		require.NoError(t, eventBus.Publish(bus.NamespaceTopic("ns-1"), engine.Event{}))
	}

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced snapshot")
	}

	select {
	case <-out:
		t.Fatal("a burst of ticks must collapse into a single re-evaluation")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatchQueue_ClosesOnContextCancel(t *testing.T) {
	store := newTestStore(t)
	sched := New(store)
	eventBus := bus.NewChannelBus()
	ctx, cancel := context.WithCancel(context.Background())

	out, err := sched.WatchQueue(ctx, eventBus, "ns-1", 50*time.Millisecond)
	require.NoError(t, err)
	<-out // drain initial snapshot

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "channel should be closed after context cancellation")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
