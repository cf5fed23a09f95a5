// Package group implements group and job creation, chain splicing, job
// lifecycle transitions, and the group-status derivation rule that fires
// whenever a member job becomes terminal.
package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/pkg/logger"
	"github.com/relayforge/taskmesh/pkg/redaction"
)

// JobDef is a caller-supplied job definition for createGroup/insertGroupAfter.
type JobDef struct {
	JobType string
	Harness engine.Harness
	Context string
}

// Service implements group and job lifecycle operations against an engine.Store, publishing invalidation
// events to bus on every mutation so scheduler watchers wake up.
type Service struct {
	store engine.Store
	bus   engine.EventBus
}

// New constructs a Service.
func New(store engine.Store, bus engine.EventBus) *Service {
	return &Service{store: store, bus: bus}
}

func (s *Service) publish(namespaceID, assignmentID, groupID, jobID string, kind engine.EventKind) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish("namespace:"+namespaceID, engine.Event{
		Kind: kind, NamespaceID: namespaceID, AssignmentID: assignmentID, GroupID: groupID, JobID: jobID,
	})
}

// CreateResult is the output of createGroup/insertGroupAfter.
type CreateResult struct {
	GroupID string
	JobIDs  []string
}

// CreateGroup inserts one jobGroups row with status=pending, then each job
// pointing to it. If the assignment has no headGroupId, the new group
// becomes it; otherwise the new group is left unattached to the chain — the
// caller must use InsertGroupAfter to splice it in.
func (s *Service) CreateGroup(ctx context.Context, assignmentID string, jobs []JobDef) (*CreateResult, error) {
	if len(jobs) == 0 {
		return nil, engine.ErrEmptyGroup
	}
	result := &CreateResult{}
	var namespaceID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		a, err := tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		now := time.Now()
		g := &engine.JobGroup{
			ID:           uuid.New().String(),
			AssignmentID: assignmentID,
			Status:       engine.GroupPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		if err := s.insertJobs(ctx, tx, g.ID, jobs, result); err != nil {
			return err
		}
		if a.HeadGroupID == "" {
			a.HeadGroupID = g.ID
			a.UpdatedAt = now
			if err := tx.UpdateAssignment(ctx, a); err != nil {
				return fmt.Errorf("set head group: %w", err)
			}
		}
		result.GroupID = g.ID
		namespaceID = a.NamespaceID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, assignmentID, result.GroupID, "", engine.EventGroupChanged)
	return result, nil
}

// InsertGroupAfter resolves the predecessor, creates the new group with
// nextGroupId = predecessor.nextGroupId, then patches the predecessor's
// nextGroupId to the new group — the canonical singly-linked insertion.
// Both steps run inside one transaction; implementations lacking
// multi-document transactions should instead insert the new group first
// (pointing at predecessor.nextGroupId) and patch the predecessor second, so
// a reader observing a partial state merely sees the pre-insertion chain,
// never a loop. WithTx already gives this implementation a real
// transaction, but the operations are still ordered that way so a
// non-transactional store would stay safe too.
func (s *Service) InsertGroupAfter(ctx context.Context, afterGroupID string, jobs []JobDef) (*CreateResult, error) {
	if len(jobs) == 0 {
		return nil, engine.ErrEmptyGroup
	}
	result := &CreateResult{}
	var namespaceID, assignmentID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		predecessor, err := tx.GetGroup(ctx, afterGroupID)
		if err != nil {
			return err
		}
		now := time.Now()
		g := &engine.JobGroup{
			ID:           uuid.New().String(),
			AssignmentID: predecessor.AssignmentID,
			NextGroupID:  predecessor.NextGroupID,
			Status:       engine.GroupPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		if err := s.insertJobs(ctx, tx, g.ID, jobs, result); err != nil {
			return err
		}
		predecessor.NextGroupID = g.ID
		predecessor.UpdatedAt = now
		if err := tx.UpdateGroup(ctx, predecessor); err != nil {
			return fmt.Errorf("patch predecessor: %w", err)
		}
		a, err := tx.GetAssignment(ctx, g.AssignmentID)
		if err != nil {
			return err
		}
		result.GroupID = g.ID
		assignmentID = g.AssignmentID
		namespaceID = a.NamespaceID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, assignmentID, result.GroupID, "", engine.EventGroupChanged)
	return result, nil
}

// GroupWithJobs pairs a group with its member jobs, for getGroupWithJobs.
type GroupWithJobs struct {
	Group *engine.JobGroup
	Jobs  []*engine.Job
}

func (s *Service) ListGroups(ctx context.Context, assignmentID string) ([]*engine.JobGroup, error) {
	return s.store.ListGroupsByAssignment(ctx, assignmentID)
}

func (s *Service) GetGroup(ctx context.Context, id string) (*engine.JobGroup, error) {
	return s.store.GetGroup(ctx, id)
}

func (s *Service) GetGroupWithJobs(ctx context.Context, id string) (*GroupWithJobs, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobsByGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GroupWithJobs{Group: g, Jobs: jobs}, nil
}

// ListJobs lists the member jobs of groupID, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, groupID string, status *engine.JobStatus) ([]*engine.Job, error) {
	jobs, err := s.store.ListJobsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return jobs, nil
	}
	filtered := jobs[:0]
	for _, j := range jobs {
		if j.Status == *status {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*engine.Job, error) {
	return s.store.GetJob(ctx, id)
}

// JobWithAssignment pairs a job with its owning group and assignment, for
// getWithAssignment.
type JobWithAssignment struct {
	Job        *engine.Job
	Group      *engine.JobGroup
	Assignment *engine.Assignment
}

func (s *Service) GetJobWithAssignment(ctx context.Context, id string) (*JobWithAssignment, error) {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetGroup(ctx, j.GroupID)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetAssignment(ctx, g.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &JobWithAssignment{Job: j, Group: g, Assignment: a}, nil
}

func (s *Service) insertJobs(ctx context.Context, tx engine.Store, groupID string, jobs []JobDef, result *CreateResult) error {
	now := time.Now()
	for _, def := range jobs {
		j := &engine.Job{
			ID:        uuid.New().String(),
			GroupID:   groupID,
			JobType:   def.JobType,
			Harness:   def.Harness,
			Context:   def.Context,
			Status:    engine.JobPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateJob(ctx, j); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		result.JobIDs = append(result.JobIDs, j.ID)
	}
	return nil
}

// StartJob requires current status pending. Patches the job to running,
// the owning group to running, and the owning assignment to active if not
// already active (adjusting namespace counters).
func (s *Service) StartJob(ctx context.Context, jobID string, prompt *string) (*engine.Job, error) {
	var result *engine.Job
	var namespaceID, assignmentID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		j, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if j.Status != engine.JobPending {
			return fmt.Errorf("start job %s: %w", jobID, engine.ErrIllegalTransition)
		}
		now := time.Now()
		j.Status = engine.JobRunning
		j.StartedAt = &now
		if prompt != nil {
			j.Prompt = *prompt
		}
		j.UpdatedAt = now
		if err := tx.UpdateJob(ctx, j); err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		g, err := tx.GetGroup(ctx, j.GroupID)
		if err != nil {
			return err
		}
		g.Status = engine.GroupRunning
		g.UpdatedAt = now
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return fmt.Errorf("update group: %w", err)
		}

		a, err := tx.GetAssignment(ctx, g.AssignmentID)
		if err != nil {
			return err
		}
		if a.Status != engine.AssignmentActive {
			oldStatus := a.Status
			a.Status = engine.AssignmentActive
			a.UpdatedAt = now
			if err := tx.UpdateAssignment(ctx, a); err != nil {
				return fmt.Errorf("activate assignment: %w", err)
			}
			ns, err := tx.GetNamespace(ctx, a.NamespaceID)
			if err != nil {
				return err
			}
			ns.AssignmentCounts.Add(oldStatus, -1)
			ns.AssignmentCounts.Add(engine.AssignmentActive, 1)
			ns.UpdatedAt = now
			if err := tx.UpdateNamespace(ctx, ns); err != nil {
				return err
			}
		}
		namespaceID = a.NamespaceID
		assignmentID = a.ID
		result = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, assignmentID, result.GroupID, result.ID, engine.EventJobChanged)
	return result, nil
}

// CompleteJob requires current status running (admin cancel from pending is
// also accepted for failJob, not here). Patches to complete, runs group
// status derivation.
func (s *Service) CompleteJob(ctx context.Context, jobID, result string, metrics *engine.JobMetrics) (*engine.Job, error) {
	return s.terminate(ctx, jobID, engine.JobComplete, &result, metrics, false)
}

// FailJob requires current status running; implementors MAY also permit
// pending -> failed for admin cancel, which this implementation allows.
func (s *Service) FailJob(ctx context.Context, jobID string, result *string, metrics *engine.JobMetrics) (*engine.Job, error) {
	return s.terminate(ctx, jobID, engine.JobFailed, result, metrics, true)
}

func (s *Service) terminate(ctx context.Context, jobID string, status engine.JobStatus, result *string, metrics *engine.JobMetrics, allowPendingCancel bool) (*engine.Job, error) {
	var out *engine.Job
	var namespaceID, assignmentID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		j, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if j.Status != engine.JobRunning && !(allowPendingCancel && j.Status == engine.JobPending) {
			return fmt.Errorf("terminate job %s: %w", jobID, engine.ErrIllegalTransition)
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
		if err := tx.UpdateJob(ctx, j); err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		g, err := tx.GetGroup(ctx, j.GroupID)
		if err != nil {
			return err
		}
		if err := deriveGroupStatus(ctx, tx, g); err != nil {
			return err
		}

		a, err := tx.GetAssignment(ctx, g.AssignmentID)
		if err != nil {
			return err
		}
		namespaceID = a.NamespaceID
		assignmentID = a.ID
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.InfoCF("group", "job terminated", map[string]interface{}{
		"job_id":  out.ID,
		"status":  string(out.Status),
		"result":  redaction.Redact(valueOrEmpty(out.Result)),
	})
	s.publish(namespaceID, assignmentID, out.GroupID, out.ID, engine.EventJobChanged)
	return out, nil
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpdateMetrics is a non-status telemetry update, always allowed.
func (s *Service) UpdateMetrics(ctx context.Context, jobID string, metrics engine.JobMetrics) (*engine.Job, error) {
	var out *engine.Job
	var namespaceID, assignmentID string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		j, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		j.Metrics.Merge(metrics)
		j.UpdatedAt = time.Now()
		if err := tx.UpdateJob(ctx, j); err != nil {
			return fmt.Errorf("update metrics: %w", err)
		}
		g, err := tx.GetGroup(ctx, j.GroupID)
		if err != nil {
			return err
		}
		a, err := tx.GetAssignment(ctx, g.AssignmentID)
		if err != nil {
			return err
		}
		namespaceID = a.NamespaceID
		assignmentID = a.ID
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(namespaceID, assignmentID, out.GroupID, out.ID, engine.EventJobChanged)
	return out, nil
}

// deriveGroupStatus recomputes a group's status from its member jobs: if any
// member job is non-terminal, leave the group as is. Otherwise the group is
// done: complete if any job succeeded, else failed; the aggregatedResult is
// rebuilt per the A/B/C
// labeling rule. Idempotent — re-running on an already-terminal group
// yields the same stored {status, aggregatedResult}.
func deriveGroupStatus(ctx context.Context, tx engine.Store, g *engine.JobGroup) error {
	jobs, err := tx.ListJobsByGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status == engine.JobPending || j.Status == engine.JobRunning {
			return nil
		}
	}

	anySucceeded := false
	for _, j := range jobs {
		if j.Status == engine.JobComplete {
			anySucceeded = true
			break
		}
	}
	newStatus := engine.GroupFailed
	if anySucceeded {
		newStatus = engine.GroupComplete
	}

	aggregated := buildAggregatedResult(jobs)
	g.Status = newStatus
	g.AggregatedResult = &aggregated
	g.UpdatedAt = time.Now()
	return tx.UpdateGroup(ctx, g)
}

// buildAggregatedResult partitions jobs-with-non-null-result by jobType. A
// jobType with exactly one job is labeled with the bare jobType; one with
// N>1 jobs is labeled "<jobType> A", "<jobType> B", ... in natural iteration
// order. Sections join with "\n\n---\n\n", each preceded by "## <label>\n".
func buildAggregatedResult(jobs []*engine.Job) string {
	type entry struct {
		jobType string
		result  string
	}
	byType := make(map[string][]entry)
	var typeOrder []string
	for _, j := range jobs {
		if j.Result == nil {
			continue
		}
		if _, seen := byType[j.JobType]; !seen {
			typeOrder = append(typeOrder, j.JobType)
		}
		byType[j.JobType] = append(byType[j.JobType], entry{jobType: j.JobType, result: *j.Result})
	}
	var sections []string
	for _, jobType := range typeOrder {
		entries := byType[jobType]
		for i, e := range entries {
			label := jobType
			if len(entries) > 1 {
				label = fmt.Sprintf("%s %c", jobType, rune('A'+i))
			}
			sections = append(sections, fmt.Sprintf("## %s\n%s", label, e.result))
		}
	}
	return strings.Join(sections, "\n\n---\n\n")
}
