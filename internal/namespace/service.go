// Package namespace implements the Namespace Registry: CRUD over
// namespaces plus the denormalized assignment-status counters invariant.
package namespace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
)

// Service implements namespace registry operations against an engine.Store.
type Service struct {
	store engine.Store
}

// New constructs a Service.
func New(store engine.Store) *Service {
	return &Service{store: store}
}

// Create is idempotent on name: a second call with the same name returns the
// existing namespace's id rather than erroring, matching the tie-break rule
// "at-most-one insertion; the later caller observes the earlier id."
func (s *Service) Create(ctx context.Context, name, description string) (*engine.Namespace, error) {
	if existing, err := s.store.GetNamespaceByName(ctx, name); err == nil {
		return existing, nil
	} else if err != engine.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	ns := &engine.Namespace{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateNamespace(ctx, ns); err != nil {
		// A concurrent creator may have won the unique-name race; surface
		// their row instead of the uniqueness violation.
		if existing, getErr := s.store.GetNamespaceByName(ctx, name); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create namespace: %w", err)
	}
	return ns, nil
}

func (s *Service) Get(ctx context.Context, id string) (*engine.Namespace, error) {
	return s.store.GetNamespace(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*engine.Namespace, error) {
	return s.store.GetNamespaceByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]*engine.Namespace, error) {
	return s.store.ListNamespaces(ctx)
}

// Update applies a partial patch. Name/description changes only; counters
// are never writable through Update (they are derived state).
func (s *Service) Update(ctx context.Context, id string, name, description *string) (*engine.Namespace, error) {
	ns, err := s.store.GetNamespace(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		ns.Name = *name
	}
	if description != nil {
		ns.Description = *description
	}
	ns.UpdatedAt = time.Now()
	if err := s.store.UpdateNamespace(ctx, ns); err != nil {
		return nil, fmt.Errorf("update namespace: %w", err)
	}
	return ns, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.RemoveNamespace(ctx, id)
}

// BackfillNamespaceCounts recomputes assignmentCounts for every namespace by
// scanning its assignments, self-healing any drift between the denormalized
// counters and the underlying rows.
func (s *Service) BackfillNamespaceCounts(ctx context.Context) error {
	namespaces, err := s.store.ListNamespaces(ctx)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		assignments, err := s.store.ListAssignments(ctx, ns.ID, nil)
		if err != nil {
			return err
		}
		var counts engine.AssignmentCounts
		for _, a := range assignments {
			counts.Add(a.Status, 1)
		}
		ns.AssignmentCounts = counts
		ns.UpdatedAt = time.Now()
		if err := s.store.UpdateNamespace(ctx, ns); err != nil {
			return fmt.Errorf("backfill namespace %s: %w", ns.ID, err)
		}
	}
	return nil
}
