// Package journal keeps a SQLite history of dispatched trajectories.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/execution"
)

// Default and maximum List sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("journal: entry not found")

// Outcome statuses stored with each entry.
const (
	StatusSucceeded     = "succeeded"
	StatusCancelled     = "cancelled"
	StatusRejected      = "rejected"
	StatusPreempted     = "preempted"
	StatusTimedOut      = "timed_out"
	StatusPublishFailed = "publish_failed"
	StatusFailed        = "failed"
)

// Entry is one recorded dispatch.
type Entry struct {
	ID          string        `json:"id"`
	Group       string        `json:"group"`
	Mode        string        `json:"mode"`
	Points      int           `json:"points"`
	Duration    time.Duration `json:"duration_ns"`
	Fingerprint string        `json:"fingerprint"`
	ArchivePath string        `json:"archive_path,omitempty"`
	Jumps       int           `json:"jumps"`
	LockedOut   bool          `json:"locked_out"`
	Waited      bool          `json:"waited"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Journal implements execution.Journal over an executions table.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a journal over db, which must already be bootstrapped.
// A nil logger uses the package default.
func New(db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = log.WithComponent("journal")
	}
	return &Journal{db: db, logger: logger}
}

// StatusOf classifies a dispatch error.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusSucceeded
	case errors.Is(err, execution.ErrCancelled):
		return StatusCancelled
	case errors.Is(err, execution.ErrBackendRejected):
		return StatusRejected
	case errors.Is(err, execution.ErrPreempted):
		return StatusPreempted
	case errors.Is(err, execution.ErrTimedOut):
		return StatusTimedOut
	case errors.Is(err, execution.ErrPublishFailed):
		return StatusPublishFailed
	default:
		return StatusFailed
	}
}

// Record implements execution.Journal.
func (j *Journal) Record(ctx context.Context, o execution.Outcome) error {
	id := uuid.NewString()
	var errMsg sql.NullString
	if o.Err != nil {
		errMsg = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	var archive sql.NullString
	if o.ArchivePath != "" {
		archive = sql.NullString{String: o.ArchivePath, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO executions(id, grp, mode, points, duration_ms, fingerprint, archive_path, jumps, locked_out, waited, status, error, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		id,
		o.Group,
		string(o.Mode),
		o.Points,
		o.Duration.Milliseconds(),
		o.Fingerprint,
		archive,
		len(o.Jumps),
		boolInt(o.LockedOut),
		boolInt(o.Waited),
		StatusOf(o.Err),
		errMsg,
		o.StartedAt.UTC().Format(time.RFC3339Nano),
		o.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	j.logger.Debug("recorded execution", "id", id, "group", o.Group, "status", StatusOf(o.Err))
	return nil
}

const selectColumns = `id, grp, mode, points, duration_ms, fingerprint, archive_path, jumps, locked_out, waited, status, error, started_at, finished_at`

// List returns the most recent entries, newest first. limit <= 0 uses
// DefaultLimit.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := j.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM executions ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Get returns one entry by ID.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM executions WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// CountByFingerprint reports how many times the same trajectory was dispatched.
func (j *Journal) CountByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions WHERE fingerprint = ?;`, fingerprint).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                    Entry
		durationMS           int64
		archive, errMsg      sql.NullString
		lockedOut, waited    int
		startedS, finishedS  string
	)
	if err := s.Scan(&e.ID, &e.Group, &e.Mode, &e.Points, &durationMS, &e.Fingerprint, &archive,
		&e.Jumps, &lockedOut, &waited, &e.Status, &errMsg, &startedS, &finishedS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("journal: scan: %w", err)
	}

	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.ArchivePath = archive.String
	e.Error = errMsg.String
	e.LockedOut = lockedOut != 0
	e.Waited = waited != 0
	if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
		e.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, finishedS); err == nil {
		e.FinishedAt = t
	}
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
