// Package assignment implements the Assignment Service: lifecycle,
// artifacts/decisions, the head-of-chain pointer, and cascade-delete.
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
)

// maxChainDepth bounds the chain walk so a corrupt cyclic chain fails loudly
// instead of looping forever.
const maxChainDepth = 10000

// Service implements assignment lifecycle operations against an engine.Store,
// publishing invalidation events to bus on every mutation so scheduler
// watchers wake up.
type Service struct {
	store engine.Store
	bus   engine.EventBus
}

// New constructs a Service.
func New(store engine.Store, bus engine.EventBus) *Service {
	return &Service{store: store, bus: bus}
}

func (s *Service) publish(namespaceID, assignmentID string) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish("namespace:"+namespaceID, engine.Event{
		Kind: engine.EventAssignmentChanged, NamespaceID: namespaceID, AssignmentID: assignmentID,
	})
}

// Create inserts a pending assignment and increments the namespace's pending
// counter.
func (s *Service) Create(ctx context.Context, namespaceID, northStar string, independent bool, priority *int) (*engine.Assignment, error) {
	p := engine.DefaultAssignmentPriority
	if priority != nil {
		p = *priority
	}
	now := time.Now()
	a := &engine.Assignment{
		ID:          uuid.New().String(),
		NamespaceID: namespaceID,
		NorthStar:   northStar,
		Status:      engine.AssignmentPending,
		Independent: independent,
		Priority:    p,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		if err := tx.CreateAssignment(ctx, a); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return adjustCounter(ctx, tx, namespaceID, "", engine.AssignmentPending)
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, a.ID)
	return a, nil
}

// AssignmentPatch is a partial update to an assignment; nil fields are left
// unchanged.
type AssignmentPatch struct {
	NorthStar       *string
	Status          *engine.AssignmentStatus
	Independent     *bool
	Priority        *int
	Artifacts       *string
	Decisions       *string
	BlockedReason   *string
	AlignmentStatus *engine.AlignmentStatus
	HeadGroupID     *string
}

// List returns a namespace's assignments, optionally filtered by status —
// backs both the `list(namespaceId, status?)` operation and the scheduler's
// `getAllAssignments` surface.
func (s *Service) List(ctx context.Context, namespaceID string, status *engine.AssignmentStatus) ([]*engine.Assignment, error) {
	return s.store.ListAssignments(ctx, namespaceID, status)
}

// Update applies patch. If Status is present and differs from the current
// status, the namespace's old/new counters are atomically adjusted.
func (s *Service) Update(ctx context.Context, id string, patch AssignmentPatch) (*engine.Assignment, error) {
	var result *engine.Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		oldStatus := a.Status
		if patch.NorthStar != nil {
			a.NorthStar = *patch.NorthStar
		}
		if patch.Independent != nil {
			a.Independent = *patch.Independent
		}
		if patch.Priority != nil {
			a.Priority = *patch.Priority
		}
		if patch.Artifacts != nil {
			a.Artifacts = *patch.Artifacts
		}
		if patch.Decisions != nil {
			a.Decisions = *patch.Decisions
		}
		if patch.BlockedReason != nil {
			a.BlockedReason = *patch.BlockedReason
		}
		if patch.AlignmentStatus != nil {
			a.AlignmentStatus = *patch.AlignmentStatus
		}
		if patch.HeadGroupID != nil {
			a.HeadGroupID = *patch.HeadGroupID
		}
		if patch.Status != nil {
			a.Status = *patch.Status
		}
		a.UpdatedAt = time.Now()
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if patch.Status != nil && *patch.Status != oldStatus {
			if err := adjustCounter(ctx, tx, a.NamespaceID, oldStatus, *patch.Status); err != nil {
				return err
			}
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(result.NamespaceID, result.ID)
	return result, nil
}

// Complete transitions the assignment to complete.
func (s *Service) Complete(ctx context.Context, id string) (*engine.Assignment, error) {
	status := engine.AssignmentComplete
	return s.Update(ctx, id, AssignmentPatch{Status: &status})
}

// Block transitions the assignment to blocked, recording reason.
func (s *Service) Block(ctx context.Context, id, reason string) (*engine.Assignment, error) {
	status := engine.AssignmentBlocked
	return s.Update(ctx, id, AssignmentPatch{Status: &status, BlockedReason: &reason})
}

// Unblock forces status -> active; it never reverts an assignment to pending.
func (s *Service) Unblock(ctx context.Context, id string) (*engine.Assignment, error) {
	status := engine.AssignmentActive
	cleared := ""
	return s.Update(ctx, id, AssignmentPatch{Status: &status, BlockedReason: &cleared})
}

// RemoveResult reports the cascade-delete counts from Remove.
type RemoveResult struct {
	GroupsDeleted int
	JobsDeleted   int
}

// Remove cascade-deletes every group in the chain and every job in each
// group, clears assignmentId on any referencing chat thread, and decrements
// the namespace's old-status counter.
func (s *Service) Remove(ctx context.Context, id string) (*RemoveResult, error) {
	result := &RemoveResult{}
	var namespaceID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}

		groups, err := tx.ListGroupsByAssignment(ctx, id)
		if err != nil {
			return err
		}
		for _, g := range groups {
			n, err := tx.RemoveJobsByGroup(ctx, g.ID)
			if err != nil {
				return err
			}
			result.JobsDeleted += n
			if err := tx.RemoveGroup(ctx, g.ID); err != nil {
				return err
			}
			result.GroupsDeleted++
		}

		threads, err := tx.ListThreadsByNamespace(ctx, a.NamespaceID)
		if err != nil {
			return err
		}
		for _, t := range threads {
			if t.AssignmentID != id {
				continue
			}
			t.AssignmentID = ""
			t.UpdatedAt = time.Now()
			if err := tx.UpdateThread(ctx, t); err != nil {
				return err
			}
		}

		if err := tx.RemoveAssignment(ctx, id); err != nil {
			return err
		}
		namespaceID = a.NamespaceID
		return adjustCounter(ctx, tx, a.NamespaceID, a.Status, "")
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, id)
	return result, nil
}

func (s *Service) Get(ctx context.Context, id string) (*engine.Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// GroupWithJobs pairs a group with its member jobs.
type GroupWithJobs struct {
	Group *engine.JobGroup
	Jobs  []*engine.Job
}

// AssignmentWithGroups is the result of GetWithGroups.
type AssignmentWithGroups struct {
	Assignment *engine.Assignment
	Groups     []GroupWithJobs
}

// GetWithGroups walks the chain and attaches all jobs per group.
func (s *Service) GetWithGroups(ctx context.Context, id string) (*AssignmentWithGroups, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.walkChain(ctx, a.HeadGroupID)
	if err != nil {
		return nil, err
	}
	out := &AssignmentWithGroups{Assignment: a}
	for _, g := range chain {
		jobs, err := s.store.ListJobsByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		out.Groups = append(out.Groups, GroupWithJobs{Group: g, Jobs: jobs})
	}
	return out, nil
}

// GetGroupChain performs the same walk as GetWithGroups but without loading
// jobs, a cheaper read for chain-shape-only callers.
func (s *Service) GetGroupChain(ctx context.Context, id string) ([]*engine.JobGroup, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.walkChain(ctx, a.HeadGroupID)
}

// walkChain follows headGroupId -> nextGroupId, bounding depth at
// maxChainDepth and detecting cycles via a visited-set check, surfacing
// ErrChainCorrupt on either a cycle or a dangling pointer.
func (s *Service) walkChain(ctx context.Context, headGroupID string) ([]*engine.JobGroup, error) {
	if headGroupID == "" {
		return nil, nil
	}
	visited := make(map[string]bool)
	var chain []*engine.JobGroup
	current := headGroupID
	for current != "" {
		if visited[current] {
			return nil, engine.ErrChainCorrupt
		}
		if len(chain) >= maxChainDepth {
			return nil, engine.ErrChainCorrupt
		}
		visited[current] = true
		g, err := s.store.GetGroup(ctx, current)
		if err != nil {
			if err == engine.ErrNotFound {
				return nil, engine.ErrChainCorrupt
			}
			return nil, err
		}
		chain = append(chain, g)
		current = g.NextGroupID
	}
	return chain, nil
}

// adjustCounter decrements oldStatus's counter (if non-empty) and increments
// newStatus's counter (if non-empty) on the namespace, atomically within the
// caller's transaction.
func adjustCounter(ctx context.Context, tx engine.Store, namespaceID string, oldStatus, newStatus engine.AssignmentStatus) error {
	ns, err := tx.GetNamespace(ctx, namespaceID)
	if err != nil {
		return err
	}
	if oldStatus != "" {
		ns.AssignmentCounts.Add(oldStatus, -1)
	}
	if newStatus != "" {
		ns.AssignmentCounts.Add(newStatus, 1)
	}
	ns.UpdatedAt = time.Now()
	return tx.UpdateNamespace(ctx, ns)
}
