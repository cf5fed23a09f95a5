package storage

import (
	"context"
	"database/sql"

	"github.com/relayforge/taskmesh/internal/engine"
)

const groupColumns = `id, assignment_id, next_group_id, status, aggregated_result, created_at, updated_at`

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *engine.JobGroup) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO job_groups (id, assignment_id, next_group_id, status, aggregated_result, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.AssignmentID, nullString(g.NextGroupID), string(g.Status), nullStringPtr(g.AggregatedResult),
		toMillis(g.CreatedAt), toMillis(g.UpdatedAt))
	return err
}

func scanGroup(scan func(dest ...any) error) (*engine.JobGroup, error) {
	var g engine.JobGroup
	var status string
	var nextGroupID, aggregatedResult sql.NullString
	var createdAt, updatedAt int64
	if err := scan(&g.ID, &g.AssignmentID, &nextGroupID, &status, &aggregatedResult, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	g.NextGroupID = nextGroupID.String
	g.Status = engine.GroupStatus(status)
	if aggregatedResult.Valid {
		v := aggregatedResult.String
		g.AggregatedResult = &v
	}
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return &g, nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*engine.JobGroup, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM job_groups WHERE id = ?`, id)
	return scanGroup(row.Scan)
}

func (s *SQLiteStore) ListGroupsByAssignment(ctx context.Context, assignmentID string) ([]*engine.JobGroup, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+groupColumns+` FROM job_groups WHERE assignment_id = ? ORDER BY created_at ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.JobGroup
	for rows.Next() {
		g, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateGroup(ctx context.Context, g *engine.JobGroup) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE job_groups SET next_group_id = ?, status = ?, aggregated_result = ?, updated_at = ? WHERE id = ?`,
		nullString(g.NextGroupID), string(g.Status), nullStringPtr(g.AggregatedResult), toMillis(g.UpdatedAt), g.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) RemoveGroup(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM job_groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) HasRunningGroup(ctx context.Context, assignmentID string) (bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT 1 FROM job_groups WHERE assignment_id = ? AND status = ? LIMIT 1`, assignmentID, string(engine.GroupRunning))
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// --- Jobs ---

const jobColumns = `id, group_id, job_type, harness, context, prompt, status, result, started_at, completed_at, metrics, created_at, updated_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, j *engine.Job) error {
	metrics, err := marshalJSON(j.Metrics)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO jobs (id, group_id, job_type, harness, context, prompt, status, result, started_at, completed_at, metrics, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.GroupID, j.JobType, string(j.Harness), nullString(j.Context), nullString(j.Prompt), string(j.Status),
		nullStringPtr(j.Result), toMillisPtr(j.StartedAt), toMillisPtr(j.CompletedAt), metrics,
		toMillis(j.CreatedAt), toMillis(j.UpdatedAt))
	return err
}

func scanJob(scan func(dest ...any) error) (*engine.Job, error) {
	var j engine.Job
	var harness, status string
	var context, prompt, result sql.NullString
	var startedAt, completedAt sql.NullInt64
	var metrics string
	var createdAt, updatedAt int64
	if err := scan(&j.ID, &j.GroupID, &j.JobType, &harness, &context, &prompt, &status, &result,
		&startedAt, &completedAt, &metrics, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	j.Harness = engine.Harness(harness)
	j.Status = engine.JobStatus(status)
	j.Context = context.String
	j.Prompt = prompt.String
	if result.Valid {
		v := result.String
		j.Result = &v
	}
	j.StartedAt = fromMillisPtr(startedAt)
	j.CompletedAt = fromMillisPtr(completedAt)
	if err := unmarshalJSON(metrics, &j.Metrics); err != nil {
		return nil, err
	}
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*engine.Job, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row.Scan)
}

func (s *SQLiteStore) ListJobsByGroup(ctx context.Context, groupID string) ([]*engine.Job, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE group_id = ? ORDER BY created_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, j *engine.Job) error {
	metrics, err := marshalJSON(j.Metrics)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE jobs SET job_type = ?, harness = ?, context = ?, prompt = ?, status = ?, result = ?, started_at = ?, completed_at = ?, metrics = ?, updated_at = ? WHERE id = ?`,
		j.JobType, string(j.Harness), nullString(j.Context), nullString(j.Prompt), string(j.Status),
		nullStringPtr(j.Result), toMillisPtr(j.StartedAt), toMillisPtr(j.CompletedAt), metrics, toMillis(j.UpdatedAt), j.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) RemoveJobsByGroup(ctx context.Context, groupID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM jobs WHERE group_id = ?`, groupID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
