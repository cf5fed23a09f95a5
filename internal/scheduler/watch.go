package scheduler

import (
	"context"
	"time"

	"github.com/relayforge/taskmesh/internal/bus"
	"github.com/relayforge/taskmesh/internal/engine"
)

// WatchQueue is a live-subscription expansion of getReadyJobs: it
// re-runs GetReadyJobs every time the notifier bus fires for namespaceID,
// debounced by at least debounce so a burst of mutations collapses to one
// re-evaluation. The returned channel is closed when ctx is done.
func (s *Scheduler) WatchQueue(ctx context.Context, eventBus engine.EventBus, namespaceID string, debounce time.Duration) (<-chan []ReadyJob, error) {
	out := make(chan []ReadyJob, 1)
	ticks := make(chan struct{}, 1)

	sub, err := eventBus.Subscribe(bus.NamespaceTopic(namespaceID), func(engine.Event) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	if err != nil {
		close(out)
		return nil, err
	}

	emit := func() {
		jobs, err := s.GetReadyJobs(ctx, namespaceID)
		if err != nil {
			return
		}
		select {
		case out <- jobs:
		default:
			// Drop a stale pending snapshot in favor of the fresh one.
			select {
			case <-out:
			default:
			}
			out <- jobs
		}
	}

	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		emit()
		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if !pending {
					pending = true
					timer.Reset(debounce)
				}
			case <-timer.C:
				pending = false
				emit()
			}
		}
	}()

	return out, nil
}
