package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
)

// JobService implements chat-job lifecycle operations against an engine.Store.
type JobService struct {
	store engine.Store
}

// NewJobService constructs a JobService.
func NewJobService(store engine.Store) *JobService {
	return &JobService{store: store}
}

// Trigger loads the thread and its messages, selects the latest eligible
// message (pm-authored under guardian evaluation, user-authored otherwise),
// and inserts a pending chatJobs row carrying the opaque context blob.
func (s *JobService) Trigger(ctx context.Context, threadID string, harness engine.Harness, isGuardianEvaluation bool) (*engine.ChatJob, error) {
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	wantRole := engine.ChatRoleUser
	if isGuardianEvaluation {
		wantRole = engine.ChatRolePM
	}
	var latest *engine.ChatMessage
	for _, m := range messages {
		if m.Role == wantRole {
			latest = m
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("trigger chat job for thread %s: %w", threadID, engine.ErrNoEligibleMessage)
	}

	effectiveMode := t.Mode
	if t.Mode == engine.ChatModeGuardian {
		effectiveMode = engine.ChatModeCook
	}

	msgCopies := make([]engine.ChatMessage, len(messages))
	for i, m := range messages {
		msgCopies[i] = *m
	}

	jobCtx := engine.ChatJobContext{
		ThreadID:             t.ID,
		NamespaceID:          t.NamespaceID,
		Mode:                 t.Mode,
		EffectivePromptMode:  effectiveMode,
		LastPromptMode:       t.LastPromptMode,
		Messages:             msgCopies,
		LatestUserMessage:    latest.Content,
		ClaudeSessionID:      t.ClaudeSessionID,
		AssignmentID:         t.AssignmentID,
		IsGuardianEvaluation: isGuardianEvaluation,
	}
	contextJSON, err := json.Marshal(jobCtx)
	if err != nil {
		return nil, fmt.Errorf("marshal chat job context: %w", err)
	}

	if harness == "" {
		harness = engine.HarnessClaude
	}
	now := time.Now()
	job := &engine.ChatJob{
		ID:          uuid.New().String(),
		ThreadID:    threadID,
		NamespaceID: t.NamespaceID,
		Harness:     harness,
		Context:     string(contextJSON),
		Status:      engine.JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateChatJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create chat job: %w", err)
	}
	return job, nil
}

// Start requires current status pending; else IllegalTransition.
func (s *JobService) Start(ctx context.Context, id string, prompt *string) (*engine.ChatJob, error) {
	j, err := s.store.GetChatJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != engine.JobPending {
		return nil, fmt.Errorf("start chat job %s: %w", id, engine.ErrIllegalTransition)
	}
	now := time.Now()
	j.Status = engine.JobRunning
	j.StartedAt = &now
	if prompt != nil {
		j.Prompt = *prompt
	}
	j.UpdatedAt = now
	if err := s.store.UpdateChatJob(ctx, j); err != nil {
		return nil, fmt.Errorf("update chat job: %w", err)
	}
	return j, nil
}

// Complete requires current status running.
func (s *JobService) Complete(ctx context.Context, id, result string, metrics *engine.JobMetrics) (*engine.ChatJob, error) {
	return s.terminate(ctx, id, engine.JobComplete, &result, metrics, false)
}

// Fail requires current status running; also permits pending -> failed for
// admin cancel.
func (s *JobService) Fail(ctx context.Context, id string, result *string, metrics *engine.JobMetrics) (*engine.ChatJob, error) {
	return s.terminate(ctx, id, engine.JobFailed, result, metrics, true)
}

func (s *JobService) terminate(ctx context.Context, id string, status engine.JobStatus, result *string, metrics *engine.JobMetrics, allowPendingCancel bool) (*engine.ChatJob, error) {
	j, err := s.store.GetChatJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != engine.JobRunning && !(allowPendingCancel && j.Status == engine.JobPending) {
		return nil, fmt.Errorf("terminate chat job %s: %w", id, engine.ErrIllegalTransition)
	}
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	if result != nil {
		j.Result = result
	}
	if metrics != nil {
		j.Metrics.Merge(*metrics)
	}
	j.UpdatedAt = now
	if err := s.store.UpdateChatJob(ctx, j); err != nil {
		return nil, fmt.Errorf("update chat job: %w", err)
	}
	return j, nil
}

// UpdateMetrics is a non-status telemetry update, always allowed.
func (s *JobService) UpdateMetrics(ctx context.Context, id string, metrics engine.JobMetrics) (*engine.ChatJob, error) {
	j, err := s.store.GetChatJob(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Metrics.Merge(metrics)
	j.UpdatedAt = time.Now()
	if err := s.store.UpdateChatJob(ctx, j); err != nil {
		return nil, fmt.Errorf("update chat job metrics: %w", err)
	}
	return j, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*engine.ChatJob, error) {
	return s.store.GetChatJob(ctx, id)
}

func (s *JobService) GetPending(ctx context.Context, namespaceID string) ([]*engine.ChatJob, error) {
	return s.store.ListPendingChatJobs(ctx, namespaceID)
}

// GetActiveForThread returns the first pending chat job for the thread, else
// the first running one, else nil. Both lookups use the (threadId, status)
// compound index.
func (s *JobService) GetActiveForThread(ctx context.Context, threadID string) (*engine.ChatJob, error) {
	return s.store.GetActiveChatJobForThread(ctx, threadID)
}
