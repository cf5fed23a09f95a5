// Package scheduler implements the Scheduler: a pure read-side
// function that returns the set of jobs currently eligible to run, with the
// context each job needs.
package scheduler

import (
	"context"
	"sort"

	"github.com/relayforge/taskmesh/internal/engine"
)

// Scheduler implements getReadyJobs/getReadyChatJobs against an engine.Store.
// It never mutates; mutation happens only through the group/job and
// chat-job services.
type Scheduler struct {
	store engine.Store
}

// New constructs a Scheduler.
func New(store engine.Store) *Scheduler {
	return &Scheduler{store: store}
}

// GroupResult is one group's contribution to a chain-walk accumulator:
// {jobType, harness, result, groupId, groupIndex}.
type GroupResult struct {
	JobType    string
	Harness    engine.Harness
	Result     string
	GroupID    string
	GroupIndex int
}

// ReadyJob is the scheduler's payload for one dispatchable job.
type ReadyJob struct {
	Job        *engine.Job
	Group      *engine.JobGroup
	Assignment *engine.Assignment

	// AccumulatedResults is, for pm jobs, the full context since the last
	// pm checkpoint.
	AccumulatedResults []GroupResult
	// PreviousNonPmGroupResults is the direct predecessor's outputs.
	PreviousNonPmGroupResults []GroupResult
	// R1GroupResults is the non-review group immediately before the most
	// recent review, used by a pm re-inspecting review feedback.
	R1GroupResults []GroupResult
}

// GetReadyJobs runs the eligibility gate followed by a per-assignment chain
// walk, for every assignment in namespaceID.
func (s *Scheduler) GetReadyJobs(ctx context.Context, namespaceID string) ([]ReadyJob, error) {
	assignments, err := s.store.ListAssignmentsByStatuses(ctx, namespaceID,
		[]engine.AssignmentStatus{engine.AssignmentPending, engine.AssignmentActive})
	if err != nil {
		return nil, err
	}

	eligible, err := s.filterRunningGroups(ctx, assignments)
	if err != nil {
		return nil, err
	}

	var independentSet []*engine.Assignment
	var sequentialSet []*engine.Assignment
	for _, a := range eligible {
		if a.Independent {
			independentSet = append(independentSet, a)
		} else {
			sequentialSet = append(sequentialSet, a)
		}
	}

	var candidates []*engine.Assignment
	candidates = append(candidates, independentSet...)
	if chosen := pickSequential(sequentialSet); chosen != nil {
		candidates = append(candidates, chosen)
	}

	var ready []ReadyJob
	for _, a := range candidates {
		jobs, err := s.walkChain(ctx, a)
		if err != nil {
			if err == engine.ErrChainCorrupt {
				// ChainCorrupt is fatal per assignment: it contributes no
				// ready jobs until repaired.
				continue
			}
			return nil, err
		}
		ready = append(ready, jobs...)
	}
	return ready, nil
}

// filterRunningGroups drops any assignment with a currently-running group —
// a group is the unit of parallelism, and its members are either already
// dispatched or still waiting for peers.
func (s *Scheduler) filterRunningGroups(ctx context.Context, assignments []*engine.Assignment) ([]*engine.Assignment, error) {
	var out []*engine.Assignment
	for _, a := range assignments {
		running, err := s.store.HasRunningGroup(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if running {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// pickSequential selects the one sequential assignment eligible to
// contribute: the active one if any, else the lowest-(priority, createdAt)
// pending one.
func pickSequential(assignments []*engine.Assignment) *engine.Assignment {
	if len(assignments) == 0 {
		return nil
	}
	for _, a := range assignments {
		if a.Status == engine.AssignmentActive {
			return a
		}
	}
	pending := make([]*engine.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Status == engine.AssignmentPending {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending[0]
}

// walkChain runs the per-assignment chain walk, maintaining the three result
// accumulators and the groupIndex counter.
func (s *Scheduler) walkChain(ctx context.Context, a *engine.Assignment) ([]ReadyJob, error) {
	if a.HeadGroupID == "" {
		return nil, nil
	}

	var accumulatedResults []GroupResult
	var lastNonPmGroupResults []GroupResult
	var r1GroupResults []GroupResult
	groupIndex := 0

	visited := make(map[string]bool)
	currentID := a.HeadGroupID
	for currentID != "" {
		if visited[currentID] {
			return nil, engine.ErrChainCorrupt
		}
		visited[currentID] = true

		g, err := s.store.GetGroup(ctx, currentID)
		if err != nil {
			if err == engine.ErrNotFound {
				return nil, engine.ErrChainCorrupt
			}
			return nil, err
		}

		jobs, err := s.store.ListJobsByGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}

		pendingCount, runningCount := 0, 0
		for _, j := range jobs {
			switch j.Status {
			case engine.JobPending:
				pendingCount++
			case engine.JobRunning:
				runningCount++
			}
		}

		if pendingCount >= 1 && runningCount == 0 {
			var out []ReadyJob
			for _, j := range jobs {
				if j.Status != engine.JobPending {
					continue
				}
				out = append(out, ReadyJob{
					Job:                       j,
					Group:                     g,
					Assignment:                a,
					AccumulatedResults:        cloneResults(accumulatedResults),
					PreviousNonPmGroupResults: cloneResults(lastNonPmGroupResults),
					R1GroupResults:            cloneResults(r1GroupResults),
				})
			}
			return out, nil
		}

		if runningCount >= 1 {
			return nil, nil
		}

		groupResults := toGroupResults(jobs, groupIndex)
		containsPM := anyJobType(jobs, engine.IsPMType)
		containsReview := anyJobType(jobs, engine.IsReviewType)

		if containsPM {
			accumulatedResults = nil
			groupIndex = 0
		} else {
			if containsReview {
				r1GroupResults = cloneResults(lastNonPmGroupResults)
			}
			accumulatedResults = append(accumulatedResults, groupResults...)
			lastNonPmGroupResults = groupResults
			groupIndex++
		}

		currentID = g.NextGroupID
	}
	return nil, nil
}

func toGroupResults(jobs []*engine.Job, groupIndex int) []GroupResult {
	out := make([]GroupResult, 0, len(jobs))
	for _, j := range jobs {
		var result string
		if j.Result != nil {
			result = *j.Result
		}
		out = append(out, GroupResult{
			JobType:    j.JobType,
			Harness:    j.Harness,
			Result:     result,
			GroupID:    j.GroupID,
			GroupIndex: groupIndex,
		})
	}
	return out
}

func cloneResults(in []GroupResult) []GroupResult {
	if in == nil {
		return nil
	}
	out := make([]GroupResult, len(in))
	copy(out, in)
	return out
}

func anyJobType(jobs []*engine.Job, pred func(string) bool) bool {
	for _, j := range jobs {
		if pred(j.JobType) {
			return true
		}
	}
	return false
}

// GetReadyChatJobs scans chatJobs for status=pending, sorted by createdAt
// ascending. Chat jobs are unconditionally independent of assignment
// scheduling.
func (s *Scheduler) GetReadyChatJobs(ctx context.Context, namespaceID string) ([]*engine.ChatJob, error) {
	return s.store.ListPendingChatJobs(ctx, namespaceID)
}

// QueueStatus summarizes getQueueStatus(namespaceId): the counts a caller
// typically wants alongside the ready-job detail.
type QueueStatus struct {
	ReadyJobCount     int
	ReadyChatJobCount int
}

// GetQueueStatus is a convenience aggregate over GetReadyJobs/GetReadyChatJobs.
func (s *Scheduler) GetQueueStatus(ctx context.Context, namespaceID string) (*QueueStatus, error) {
	jobs, err := s.GetReadyJobs(ctx, namespaceID)
	if err != nil {
		return nil, err
	}
	chatJobs, err := s.GetReadyChatJobs(ctx, namespaceID)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{ReadyJobCount: len(jobs), ReadyChatJobCount: len(chatJobs)}, nil
}
