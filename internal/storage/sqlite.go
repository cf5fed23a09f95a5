// Package storage implements the Store contract over SQLite, using the
// modernc.org/sqlite pure-Go driver and JSON columns for nested/free-form
// fields.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relayforge/taskmesh/internal/engine"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every CRUD
// method run unmodified whether or not it is inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements engine.Store. db is non-nil only on the top-level
// instance returned by NewSQLiteStore; instances handed to WithTx callbacks
// wrap a *sql.Tx instead and have db == nil, so nested WithTx calls run
// in-place rather than attempting nested transactions (SQLite has none).
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

// NewSQLiteStore opens path and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // enforce single-writer semantics
	s := &SQLiteStore{db: db, q: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn against a transaction-scoped Store, committing on a nil
// return and rolling back otherwise. Called from within an existing
// transaction, it runs fn directly against the same *sql.Tx (SQLite has no
// nested transactions).
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &SQLiteStore{q: tx}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMillisPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillisPtr(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}

// --- Namespaces ---

func (s *SQLiteStore) CreateNamespace(ctx context.Context, ns *engine.Namespace) error {
	counts, err := marshalJSON(ns.AssignmentCounts)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO namespaces (id, name, description, assignment_counts, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ns.ID, ns.Name, nullString(ns.Description), counts, toMillis(ns.CreatedAt), toMillis(ns.UpdatedAt))
	return err
}

func (s *SQLiteStore) scanNamespace(row *sql.Row) (*engine.Namespace, error) {
	var ns engine.Namespace
	var desc sql.NullString
	var counts string
	var createdAt, updatedAt int64
	if err := row.Scan(&ns.ID, &ns.Name, &desc, &counts, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	ns.Description = desc.String
	if err := unmarshalJSON(counts, &ns.AssignmentCounts); err != nil {
		return nil, err
	}
	ns.CreatedAt = fromMillis(createdAt)
	ns.UpdatedAt = fromMillis(updatedAt)
	return &ns, nil
}

func (s *SQLiteStore) GetNamespace(ctx context.Context, id string) (*engine.Namespace, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, description, assignment_counts, created_at, updated_at FROM namespaces WHERE id = ?`, id)
	return s.scanNamespace(row)
}

func (s *SQLiteStore) GetNamespaceByName(ctx context.Context, name string) (*engine.Namespace, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, description, assignment_counts, created_at, updated_at FROM namespaces WHERE name = ?`, name)
	return s.scanNamespace(row)
}

func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]*engine.Namespace, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, description, assignment_counts, created_at, updated_at FROM namespaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*engine.Namespace
	for rows.Next() {
		var ns engine.Namespace
		var desc sql.NullString
		var counts string
		var createdAt, updatedAt int64
		if err := rows.Scan(&ns.ID, &ns.Name, &desc, &counts, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		ns.Description = desc.String
		if err := unmarshalJSON(counts, &ns.AssignmentCounts); err != nil {
			return nil, err
		}
		ns.CreatedAt = fromMillis(createdAt)
		ns.UpdatedAt = fromMillis(updatedAt)
		out = append(out, &ns)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateNamespace(ctx context.Context, ns *engine.Namespace) error {
	counts, err := marshalJSON(ns.AssignmentCounts)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE namespaces SET name = ?, description = ?, assignment_counts = ?, updated_at = ? WHERE id = ?`,
		ns.Name, nullString(ns.Description), counts, toMillis(ns.UpdatedAt), ns.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) RemoveNamespace(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}
