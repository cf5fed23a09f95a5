package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/relayforge/taskmesh/internal/engine"
)

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *engine.Assignment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO assignments (id, namespace_id, north_star, status, independent, priority, artifacts, decisions, blocked_reason, alignment_status, head_group_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.NamespaceID, a.NorthStar, string(a.Status), a.Independent, a.Priority,
		nullString(a.Artifacts), nullString(a.Decisions), nullString(a.BlockedReason),
		nullString(string(a.AlignmentStatus)), nullString(a.HeadGroupID),
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	return err
}

func scanAssignment(scan func(dest ...any) error) (*engine.Assignment, error) {
	var a engine.Assignment
	var status string
	var artifacts, decisions, blockedReason, alignmentStatus, headGroupID sql.NullString
	var createdAt, updatedAt int64
	if err := scan(&a.ID, &a.NamespaceID, &a.NorthStar, &status, &a.Independent, &a.Priority,
		&artifacts, &decisions, &blockedReason, &alignmentStatus, &headGroupID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	a.Status = engine.AssignmentStatus(status)
	a.Artifacts = artifacts.String
	a.Decisions = decisions.String
	a.BlockedReason = blockedReason.String
	a.AlignmentStatus = engine.AlignmentStatus(alignmentStatus.String)
	a.HeadGroupID = headGroupID.String
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

const assignmentColumns = `id, namespace_id, north_star, status, independent, priority, artifacts, decisions, blocked_reason, alignment_status, head_group_id, created_at, updated_at`

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*engine.Assignment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	return scanAssignment(row.Scan)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, namespaceID string, status *engine.AssignmentStatus) ([]*engine.Assignment, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.q.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE namespace_id = ? AND status = ? ORDER BY created_at ASC`, namespaceID, string(*status))
	} else {
		rows, err = s.q.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE namespace_id = ? ORDER BY created_at ASC`, namespaceID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListAssignmentsByStatuses backs the eligibility gate's load of assignments
// with status in {pending, active}.
func (s *SQLiteStore) ListAssignmentsByStatuses(ctx context.Context, namespaceID string, statuses []engine.AssignmentStatus) ([]*engine.Assignment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, namespaceID)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE namespace_id = ? AND status IN (` + strings.Join(placeholders, ",") + `) ORDER BY priority ASC, created_at ASC`
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]*engine.Assignment, error) {
	var out []*engine.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateAssignment(ctx context.Context, a *engine.Assignment) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE assignments SET north_star = ?, status = ?, independent = ?, priority = ?, artifacts = ?, decisions = ?, blocked_reason = ?, alignment_status = ?, head_group_id = ?, updated_at = ? WHERE id = ?`,
		a.NorthStar, string(a.Status), a.Independent, a.Priority,
		nullString(a.Artifacts), nullString(a.Decisions), nullString(a.BlockedReason),
		nullString(string(a.AlignmentStatus)), nullString(a.HeadGroupID), toMillis(a.UpdatedAt), a.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) RemoveAssignment(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
