// Package store holds persistence adapters.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voice2action/internal/domain"
)

// SQLiteReminderStore implements domain.ReminderStore using SQLite.
type SQLiteReminderStore struct {
	db *sql.DB
}

var _ domain.ReminderStore = (*SQLiteReminderStore)(nil)

// NewSQLiteReminderStore opens (or creates) the database at dbPath and runs
// the schema migration. Use ":memory:" for a throwaway store.
func NewSQLiteReminderStore(dbPath string) (*SQLiteReminderStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create reminder db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open reminder db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate reminder db: %w", err)
	}
	return &SQLiteReminderStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			id         TEXT PRIMARY KEY,
			task       TEXT NOT NULL,
			due_at     TEXT NOT NULL,
			remind_at  TEXT,
			fired      INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reminders_pending ON reminders (fired, due_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteReminderStore) Close() error {
	return s.db.Close()
}

// Save inserts r or replaces the reminder with the same ID.
func (s *SQLiteReminderStore) Save(ctx context.Context, r *domain.Reminder) error {
	var remindAt any
	if r.RemindAt != nil {
		remindAt = formatTime(*r.RemindAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, task, due_at, remind_at, fired, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			due_at = excluded.due_at,
			remind_at = excluded.remind_at,
			fired = excluded.fired`,
		r.ID, r.Task, formatTime(r.DueDate), remindAt, r.Fired, formatTime(r.CreatedAt),
	)
	if err != nil {
		return storeError("Save", err, r.ID)
	}
	return nil
}

func (s *SQLiteReminderStore) Get(ctx context.Context, id string) (*domain.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, task, due_at, remind_at, fired, created_at FROM reminders WHERE id = ?", id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("reminder", "ReminderStore.Get", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeError("Get", err, id)
	}
	return r, nil
}

// ListPending returns unfired reminders ordered by due date.
func (s *SQLiteReminderStore) ListPending(ctx context.Context) ([]*domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, task, due_at, remind_at, fired, created_at FROM reminders WHERE fired = 0 ORDER BY due_at, id")
	if err != nil {
		return nil, storeError("ListPending", err, "")
	}
	defer rows.Close()

	var out []*domain.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, storeError("ListPending", err, "")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("ListPending", err, "")
	}
	return out, nil
}

func (s *SQLiteReminderStore) MarkFired(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE reminders SET fired = 1 WHERE id = ?", id)
	if err != nil {
		return storeError("MarkFired", err, id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("reminder", "ReminderStore.MarkFired", domain.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (*domain.Reminder, error) {
	var (
		r                 domain.Reminder
		dueStr, createdAt string
		remindAt          sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Task, &dueStr, &remindAt, &r.Fired, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if r.DueDate, err = time.Parse(time.RFC3339Nano, dueStr); err != nil {
		return nil, fmt.Errorf("parse due_at of %s: %w", r.ID, err)
	}
	if remindAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, remindAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse remind_at of %s: %w", r.ID, err)
		}
		r.RemindAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func storeError(op string, err error, id string) error {
	return &domain.DomainError{
		Op:        "ReminderStore." + op,
		Err:       fmt.Errorf("%w: %w", domain.ErrReminderStore, err),
		Detail:    id,
		SubSystem: "reminder",
	}
}
