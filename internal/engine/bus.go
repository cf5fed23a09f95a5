package engine

// EventKind labels the category of mutation an Event represents.
type EventKind string

const (
	EventAssignmentChanged EventKind = "assignment_changed"
	EventGroupChanged      EventKind = "group_changed"
	EventJobChanged        EventKind = "job_changed"
	EventChatJobChanged    EventKind = "chat_job_changed"
)

// Event is published to the notifier bus whenever a mutation touches
// assignments, jobGroups, or jobs, so scheduler watchers know to
// re-evaluate. Chat-job mutations publish no Event; EventChatJobChanged is
// not emitted by any service. The payload is deliberately thin: an invalidation hint, not a
// snapshot.
type Event struct {
	Kind        EventKind
	NamespaceID string
	AssignmentID string
	GroupID     string
	JobID       string
}

// Subscription is returned by EventBus.Subscribe and must be closed once the
// subscriber no longer wants delivery.
type Subscription interface {
	Unsubscribe()
}

// EventBus is the in-process pub/sub contract backing the scheduler's
// wake-up signal. It carries no ordering or delivery guarantees beyond
// "fires at least once
// after publish for currently-registered subscribers" — the scheduler reread
// it triggers is always a fresh, idempotent pure read, so duplicate or
// coalesced deliveries are harmless.
type EventBus interface {
	Publish(topic string, event Event) error
	Subscribe(topic string, handler func(Event)) (Subscription, error)
}
