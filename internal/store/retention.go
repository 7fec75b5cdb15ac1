package store

import (
	"context"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// RunRetention deletes finished run records older than maxAge. Projects are
// never pruned; their history is owned by the user.
func (s *Store) RunRetention(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE finished_at IS NOT NULL AND finished_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: delete old runs: %w", perrors.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", perrors.ErrPersistence, err)
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Dur("max_age", maxAge).Msg("pruned old runs")
	}
	return n, nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
