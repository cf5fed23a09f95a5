// Package chat implements chat threads and messages independent of the
// assignment chain, and the chat-job trigger/lifecycle that shares the
// runner queue without ever touching assignment state.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
)

// ThreadService implements chat thread and message operations against an engine.Store.
type ThreadService struct {
	store engine.Store
}

// NewThreadService constructs a ThreadService.
func NewThreadService(store engine.Store) *ThreadService {
	return &ThreadService{store: store}
}

func (s *ThreadService) Create(ctx context.Context, namespaceID, title string, mode engine.ChatMode) (*engine.ChatThread, error) {
	now := time.Now()
	t := &engine.ChatThread{
		ID:          uuid.New().String(),
		NamespaceID: namespaceID,
		Title:       title,
		Mode:        mode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

func (s *ThreadService) List(ctx context.Context, namespaceID string) ([]*engine.ChatThread, error) {
	return s.store.ListThreadsByNamespace(ctx, namespaceID)
}

func (s *ThreadService) Get(ctx context.Context, id string) (*engine.ChatThread, error) {
	return s.store.GetThread(ctx, id)
}

func (s *ThreadService) GetGuardianThread(ctx context.Context, assignmentID string) (*engine.ChatThread, error) {
	return s.store.GetGuardianThread(ctx, assignmentID)
}

// UpdateMode may transition to jam | cook | guardian directly. Prefer
// EnableGuardianMode when also linking an assignment.
func (s *ThreadService) UpdateMode(ctx context.Context, id string, mode engine.ChatMode) (*engine.ChatThread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Mode = mode
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("update thread mode: %w", err)
	}
	return t, nil
}

func (s *ThreadService) UpdateTitle(ctx context.Context, id, title string) (*engine.ChatThread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Title = title
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("update thread title: %w", err)
	}
	return t, nil
}

// UpdateSessionID sets or clears the opaque harness-owned session token
// (e.g., on a session-invalid error from the runner, sessionID="").
func (s *ThreadService) UpdateSessionID(ctx context.Context, id, sessionID string) (*engine.ChatThread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	t.ClaudeSessionID = sessionID
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("update thread session id: %w", err)
	}
	return t, nil
}

func (s *ThreadService) UpdateLastPromptMode(ctx context.Context, id string, mode engine.ChatMode) (*engine.ChatThread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	t.LastPromptMode = mode
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("update thread last prompt mode: %w", err)
	}
	return t, nil
}

func (s *ThreadService) LinkAssignment(ctx context.Context, id, assignmentID string) (*engine.ChatThread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	t.AssignmentID = assignmentID
	t.UpdatedAt = time.Now()
	if err := s.store.UpdateThread(ctx, t); err != nil {
		return nil, fmt.Errorf("link assignment: %w", err)
	}
	return t, nil
}

// EnableGuardianMode atomically links assignmentID, sets thread.mode to
// guardian, and sets the assignment's alignmentStatus to aligned. Whether a
// guardian thread may later be unlinked is left unspecified by the source;
// this implementation refuses unlink for safety (see UnlinkAssignment).
func (s *ThreadService) EnableGuardianMode(ctx context.Context, id, assignmentID string) (*engine.ChatThread, error) {
	var out *engine.ChatThread
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		t, err := tx.GetThread(ctx, id)
		if err != nil {
			return err
		}
		a, err := tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		now := time.Now()
		t.AssignmentID = assignmentID
		t.Mode = engine.ChatModeGuardian
		t.UpdatedAt = now
		if err := tx.UpdateThread(ctx, t); err != nil {
			return fmt.Errorf("update thread: %w", err)
		}
		a.AlignmentStatus = engine.AlignmentAligned
		a.UpdatedAt = now
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return fmt.Errorf("update assignment alignment: %w", err)
		}
		if err := seedGuardianPMMessage(ctx, tx, t, a); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnlinkAssignment is deliberately unimplemented as a refusal: the source
// leaves "may a guardian thread be un-linked" unspecified, and this engine
// treats the guardian<->assignment link as permanent once established.
func (s *ThreadService) UnlinkAssignment(ctx context.Context, id string) (*engine.ChatThread, error) {
	return nil, fmt.Errorf("unlink guardian thread: %w", engine.ErrIllegalTransition)
}

// Remove cascades chat messages.
func (s *ThreadService) Remove(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		if _, err := tx.RemoveMessagesByThread(ctx, id); err != nil {
			return err
		}
		return tx.RemoveThread(ctx, id)
	})
}

// AddMessage inserts a message and patches the thread's updatedAt.
func (s *ThreadService) AddMessage(ctx context.Context, threadID string, role engine.ChatRole, content, hint string) (*engine.ChatMessage, error) {
	var out *engine.ChatMessage
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		t, err := tx.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		now := time.Now()
		m := &engine.ChatMessage{
			ID:        uuid.New().String(),
			ThreadID:  threadID,
			Role:      role,
			Content:   content,
			Hint:      hint,
			CreatedAt: now,
		}
		if err := tx.AddMessage(ctx, m); err != nil {
			return fmt.Errorf("add message: %w", err)
		}
		t.UpdatedAt = now
		if err := tx.UpdateThread(ctx, t); err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// seedGuardianPMMessage inserts a pm-role message summarizing the linked
// assignment's terminal groups, so the first guardian
// trigger(isGuardianEvaluation=true) has a non-empty pm-authored message to
// select — without it, NoEligibleMessage would fire on an otherwise-valid
// new guardian thread.
func seedGuardianPMMessage(ctx context.Context, tx engine.Store, t *engine.ChatThread, a *engine.Assignment) error {
	groups, err := tx.ListGroupsByAssignment(ctx, a.ID)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("Guardian review linked for assignment %q.", a.NorthStar)
	for _, g := range groups {
		if g.AggregatedResult != nil {
			summary += "\n\n" + *g.AggregatedResult
		}
	}
	return tx.AddMessage(ctx, &engine.ChatMessage{
		ID:        uuid.New().String(),
		ThreadID:  t.ID,
		Role:      engine.ChatRolePM,
		Content:   summary,
		CreatedAt: time.Now(),
	})
}

func (s *ThreadService) ListMessages(ctx context.Context, threadID string) ([]*engine.ChatMessage, error) {
	return s.store.ListMessages(ctx, threadID)
}
