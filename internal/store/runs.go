package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// Run kinds.
const (
	RunInitial = "initial"
	RunAmend   = "amend"
)

// Run is the bookkeeping record of one execution of a project's state machine.
type Run struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Kind            string `json:"kind"`   // initial | amend
	Status          string `json:"status"` // mirrors the project status the run ended in
	Planned         int    `json:"planned"`
	Attempted       int    `json:"attempted"`
	FailedArtifacts int    `json:"failed_artifacts"`
	Error           string `json:"error,omitempty"`
	StartedAt       int64  `json:"started_at"`            // unix ms
	FinishedAt      int64  `json:"finished_at,omitempty"` // unix ms, 0 = running
}

// SaveRun inserts or updates a run.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}

	query := `
	INSERT OR REPLACE INTO runs (
		id, project_id, kind, status, planned, attempted, failed_artifacts, error, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.ProjectID, r.Kind, r.Status, r.Planned, r.Attempted, r.FailedArtifacts,
		sql.NullString{String: r.Error, Valid: r.Error != ""},
		r.StartedAt,
		sql.NullInt64{Int64: r.FinishedAt, Valid: r.FinishedAt != 0},
	)
	if err != nil {
		return fmt.Errorf("%w: save run: %w", perrors.ErrPersistence, err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	r.FinishedAt = time.Now().UnixMilli()
	return s.SaveRun(ctx, r)
}

// ListRuns returns a project's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, projectID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, project_id, kind, status, planned, attempted, failed_artifacts, error, started_at, finished_at
	FROM runs WHERE project_id = ? ORDER BY started_at DESC, rowid DESC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", perrors.ErrPersistence, err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var errMsg sql.NullString
		var finishedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Kind, &r.Status, &r.Planned, &r.Attempted,
			&r.FailedArtifacts, &errMsg, &r.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", perrors.ErrPersistence, err)
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		if finishedAt.Valid {
			r.FinishedAt = finishedAt.Int64
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate runs: %w", perrors.ErrPersistence, err)
	}
	return runs, nil
}

// FailInterruptedRuns marks runs that never finished as failed (startup recovery).
func (s *Store) FailInterruptedRuns(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	query := `
	UPDATE runs
	SET status = 'failed', error = 'interrupted_by_restart', finished_at = ?
	WHERE finished_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%w: fail interrupted runs: %w", perrors.ErrPersistence, err)
	}
	return res.RowsAffected()
}
