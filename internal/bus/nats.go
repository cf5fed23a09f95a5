package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/pkg/logger"
)

// EventStreamName is the JetStream stream carrying cross-process notifier
// events. NATS disallows '.' in durable stream names, hence the underscore.
const EventStreamName = "TASKMESH_EVENTS"

// eventSubjectPrefix is the subject prefix; per-namespace events publish to
// eventSubjectPrefix + "." + namespaceID.
const eventSubjectPrefix = "taskmesh_events"

// NATSNotifier additionally fans notifier events out over JetStream so other
// engine processes or external dashboards can observe scheduler-relevant
// changes. It never participates in deciding which mutation wins; the store
// transaction already resolved that before Publish is called.
type NATSNotifier struct {
	js nats.JetStreamContext
}

// NewNATSNotifier connects to url and ensures the event stream exists.
func NewNATSNotifier(url string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}
	n := &NATSNotifier{js: js}
	if err := n.ensureStream(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *NATSNotifier) ensureStream() error {
	if _, err := n.js.StreamInfo(EventStreamName); err != nil {
		_, err := n.js.AddStream(&nats.StreamConfig{
			Name:     EventStreamName,
			Subjects: []string{eventSubjectPrefix + ".>"},
			MaxAge:   24 * time.Hour,
			Storage:  nats.FileStorage,
			Discard:  nats.DiscardOld,
			Replicas: 1,
		})
		if err != nil {
			return fmt.Errorf("create event stream: %w", err)
		}
		logger.InfoC("notifier", fmt.Sprintf("created event stream: %s", EventStreamName))
	}
	return nil
}

// Publish fans event out to the namespace-scoped JetStream subject. Errors
// are logged, not returned, matching the bus's best-effort delivery contract.
func (n *NATSNotifier) Publish(event engine.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.WarnCF("notifier", "failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}
	subject := fmt.Sprintf("%s.%s", eventSubjectPrefix, event.NamespaceID)
	if _, err := n.js.Publish(subject, data); err != nil {
		logger.WarnCF("notifier", "failed to publish event", map[string]interface{}{"error": err.Error(), "subject": subject})
	}
}
