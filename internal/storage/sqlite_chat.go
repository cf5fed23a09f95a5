package storage

import (
	"context"
	"database/sql"

	"github.com/relayforge/taskmesh/internal/engine"
)

const threadColumns = `id, namespace_id, title, mode, last_prompt_mode, assignment_id, claude_session_id, created_at, updated_at`

func (s *SQLiteStore) CreateThread(ctx context.Context, t *engine.ChatThread) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chat_threads (id, namespace_id, title, mode, last_prompt_mode, assignment_id, claude_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.NamespaceID, t.Title, string(t.Mode), nullString(string(t.LastPromptMode)),
		nullString(t.AssignmentID), nullString(t.ClaudeSessionID), toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	return err
}

func scanThread(scan func(dest ...any) error) (*engine.ChatThread, error) {
	var t engine.ChatThread
	var mode string
	var lastPromptMode, assignmentID, claudeSessionID sql.NullString
	var createdAt, updatedAt int64
	if err := scan(&t.ID, &t.NamespaceID, &t.Title, &mode, &lastPromptMode, &assignmentID, &claudeSessionID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	t.Mode = engine.ChatMode(mode)
	t.LastPromptMode = engine.ChatMode(lastPromptMode.String)
	t.AssignmentID = assignmentID.String
	t.ClaudeSessionID = claudeSessionID.String
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*engine.ChatThread, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM chat_threads WHERE id = ?`, id)
	return scanThread(row.Scan)
}

func (s *SQLiteStore) GetGuardianThread(ctx context.Context, assignmentID string) (*engine.ChatThread, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM chat_threads WHERE assignment_id = ? AND mode = ? ORDER BY created_at ASC LIMIT 1`,
		assignmentID, string(engine.ChatModeGuardian))
	return scanThread(row.Scan)
}

func (s *SQLiteStore) ListThreadsByNamespace(ctx context.Context, namespaceID string) ([]*engine.ChatThread, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+threadColumns+` FROM chat_threads WHERE namespace_id = ? ORDER BY updated_at DESC`, namespaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.ChatThread
	for rows.Next() {
		t, err := scanThread(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateThread(ctx context.Context, t *engine.ChatThread) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE chat_threads SET title = ?, mode = ?, last_prompt_mode = ?, assignment_id = ?, claude_session_id = ?, updated_at = ? WHERE id = ?`,
		t.Title, string(t.Mode), nullString(string(t.LastPromptMode)), nullString(t.AssignmentID),
		nullString(t.ClaudeSessionID), toMillis(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) RemoveThread(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM chat_threads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- Chat messages ---

func (s *SQLiteStore) AddMessage(ctx context.Context, m *engine.ChatMessage) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chat_messages (id, thread_id, role, content, hint, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, string(m.Role), m.Content, nullString(m.Hint), toMillis(m.CreatedAt))
	return err
}

func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]*engine.ChatMessage, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, thread_id, role, content, hint, created_at FROM chat_messages WHERE thread_id = ? ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.ChatMessage
	for rows.Next() {
		var m engine.ChatMessage
		var role string
		var hint sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &hint, &createdAt); err != nil {
			return nil, err
		}
		m.Role = engine.ChatRole(role)
		m.Hint = hint.String
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RemoveMessagesByThread(ctx context.Context, threadID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM chat_messages WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Chat jobs ---

const chatJobColumns = `id, thread_id, namespace_id, harness, context, prompt, status, result, started_at, completed_at, metrics, created_at, updated_at`

func (s *SQLiteStore) CreateChatJob(ctx context.Context, j *engine.ChatJob) error {
	metrics, err := marshalJSON(j.Metrics)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO chat_jobs (id, thread_id, namespace_id, harness, context, prompt, status, result, started_at, completed_at, metrics, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ThreadID, j.NamespaceID, string(j.Harness), j.Context, nullString(j.Prompt), string(j.Status),
		nullStringPtr(j.Result), toMillisPtr(j.StartedAt), toMillisPtr(j.CompletedAt), metrics,
		toMillis(j.CreatedAt), toMillis(j.UpdatedAt))
	return err
}

func scanChatJob(scan func(dest ...any) error) (*engine.ChatJob, error) {
	var j engine.ChatJob
	var harness, status string
	var context sql.NullString
	var prompt, result sql.NullString
	var startedAt, completedAt sql.NullInt64
	var metrics string
	var createdAt, updatedAt int64
	if err := scan(&j.ID, &j.ThreadID, &j.NamespaceID, &harness, &context, &prompt, &status, &result,
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

func (s *SQLiteStore) GetChatJob(ctx context.Context, id string) (*engine.ChatJob, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chatJobColumns+` FROM chat_jobs WHERE id = ?`, id)
	return scanChatJob(row.Scan)
}

func (s *SQLiteStore) ListPendingChatJobs(ctx context.Context, namespaceID string) ([]*engine.ChatJob, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chatJobColumns+` FROM chat_jobs WHERE namespace_id = ? AND status = ? ORDER BY created_at ASC`,
		namespaceID, string(engine.JobPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.ChatJob
	for rows.Next() {
		j, err := scanChatJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// GetActiveChatJobForThread uses the (thread_id, status) compound index
// twice: first for the pending job, falling back to the running one.
func (s *SQLiteStore) GetActiveChatJobForThread(ctx context.Context, threadID string) (*engine.ChatJob, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+chatJobColumns+` FROM chat_jobs WHERE thread_id = ? AND status = ? ORDER BY created_at ASC LIMIT 1`,
		threadID, string(engine.JobPending))
	j, err := scanChatJob(row.Scan)
	if err == nil {
		return j, nil
	}
	if err != engine.ErrNotFound {
		return nil, err
	}
	row = s.q.QueryRowContext(ctx,
		`SELECT `+chatJobColumns+` FROM chat_jobs WHERE thread_id = ? AND status = ? ORDER BY created_at ASC LIMIT 1`,
		threadID, string(engine.JobRunning))
	j, err = scanChatJob(row.Scan)
	if err == engine.ErrNotFound {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteStore) UpdateChatJob(ctx context.Context, j *engine.ChatJob) error {
	metrics, err := marshalJSON(j.Metrics)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE chat_jobs SET harness = ?, context = ?, prompt = ?, status = ?, result = ?, started_at = ?, completed_at = ?, metrics = ?, updated_at = ? WHERE id = ?`,
		string(j.Harness), j.Context, nullString(j.Prompt), string(j.Status), nullStringPtr(j.Result),
		toMillisPtr(j.StartedAt), toMillisPtr(j.CompletedAt), metrics, toMillis(j.UpdatedAt), j.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
