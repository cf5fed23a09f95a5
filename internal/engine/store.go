package engine

import "context"

// NamespaceStore is the persistence contract for the Namespace Registry.
type NamespaceStore interface {
	CreateNamespace(ctx context.Context, ns *Namespace) error
	GetNamespace(ctx context.Context, id string) (*Namespace, error)
	GetNamespaceByName(ctx context.Context, name string) (*Namespace, error)
	ListNamespaces(ctx context.Context) ([]*Namespace, error)
	UpdateNamespace(ctx context.Context, ns *Namespace) error
	RemoveNamespace(ctx context.Context, id string) error
}

// AssignmentStore is the persistence contract for the Assignment Service.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	ListAssignments(ctx context.Context, namespaceID string, status *AssignmentStatus) ([]*Assignment, error)
	ListAssignmentsByStatuses(ctx context.Context, namespaceID string, statuses []AssignmentStatus) ([]*Assignment, error)
	UpdateAssignment(ctx context.Context, a *Assignment) error
	RemoveAssignment(ctx context.Context, id string) error
}

// GroupStore is the persistence contract for groups, the parallel fan-out
// unit of the Group/Job Service.
type GroupStore interface {
	CreateGroup(ctx context.Context, g *JobGroup) error
	GetGroup(ctx context.Context, id string) (*JobGroup, error)
	ListGroupsByAssignment(ctx context.Context, assignmentID string) ([]*JobGroup, error)
	UpdateGroup(ctx context.Context, g *JobGroup) error
	RemoveGroup(ctx context.Context, id string) error
	// HasRunningGroup reports whether any group of assignmentID is running,
	// backing the scheduler's one-running-group-per-assignment short-circuit.
	HasRunningGroup(ctx context.Context, assignmentID string) (bool, error)
}

// JobStore is the persistence contract for jobs.
type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobsByGroup(ctx context.Context, groupID string) ([]*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	RemoveJobsByGroup(ctx context.Context, groupID string) (int, error)
}

// ChatStore is the persistence contract for chat threads, messages, and jobs.
type ChatStore interface {
	CreateThread(ctx context.Context, t *ChatThread) error
	GetThread(ctx context.Context, id string) (*ChatThread, error)
	GetGuardianThread(ctx context.Context, assignmentID string) (*ChatThread, error)
	ListThreadsByNamespace(ctx context.Context, namespaceID string) ([]*ChatThread, error)
	UpdateThread(ctx context.Context, t *ChatThread) error
	RemoveThread(ctx context.Context, id string) error

	AddMessage(ctx context.Context, m *ChatMessage) error
	ListMessages(ctx context.Context, threadID string) ([]*ChatMessage, error)
	RemoveMessagesByThread(ctx context.Context, threadID string) (int, error)

	CreateChatJob(ctx context.Context, j *ChatJob) error
	GetChatJob(ctx context.Context, id string) (*ChatJob, error)
	ListPendingChatJobs(ctx context.Context, namespaceID string) ([]*ChatJob, error)
	GetActiveChatJobForThread(ctx context.Context, threadID string) (*ChatJob, error)
	UpdateChatJob(ctx context.Context, j *ChatJob) error
}

// Store is the complete persistence contract backing the engine:
// transactional single-document mutations, secondary indexes, and the small
// set of multi-statement sequences that must be wrapped in a transaction
// (group creation plus head pointer, predecessor patch plus insertion,
// status change plus counter adjustment).
type Store interface {
	NamespaceStore
	AssignmentStore
	GroupStore
	JobStore
	ChatStore

	// WithTx runs fn inside a single transaction, committing on a nil
	// return and rolling back otherwise. Implementations that lack true
	// multi-statement transactions may run fn directly, provided the
	// individual operations remain ordered the same way a real transaction
	// would apply them.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
