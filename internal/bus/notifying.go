package bus

import "github.com/relayforge/taskmesh/internal/engine"

// NotifyingBus wraps a ChannelBus so every in-process dispatch is also
// mirrored to a NATSNotifier, letting a second engine process (or an
// external dashboard) observe the same notifier events a local
// scheduler.WatchQueue subscriber reacts to.
type NotifyingBus struct {
	*ChannelBus
	remote *NATSNotifier
}

// NewNotifyingBus wraps remote; remote may be nil, in which case this
// behaves exactly like a plain ChannelBus.
func NewNotifyingBus(remote *NATSNotifier) *NotifyingBus {
	return &NotifyingBus{ChannelBus: NewChannelBus(), remote: remote}
}

// Publish dispatches to local subscribers first, then mirrors to NATS.
func (b *NotifyingBus) Publish(topic string, e engine.Event) error {
	if err := b.ChannelBus.Publish(topic, e); err != nil {
		return err
	}
	if b.remote != nil {
		b.remote.Publish(e)
	}
	return nil
}
