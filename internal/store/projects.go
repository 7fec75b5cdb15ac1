package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/project"
)

// CreateProject inserts a new project document. The stored revision starts at 1.
func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Revision = 1

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal project: %w", perrors.ErrPersistence, err)
	}

	query := `
	INSERT INTO projects (id, owner_id, name, status, progress, document, revision, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Owner, p.Name, string(p.Status), p.Progress, string(doc), p.Revision,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: create project: %w", perrors.ErrPersistence, err)
	}
	return nil
}

// GetProject loads the full project document.
func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT document, revision FROM projects WHERE id = ?`, id).Scan(&doc, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get project: %w", perrors.ErrPersistence, err)
	}

	p, err := decodeProject(doc)
	if err != nil {
		return nil, err
	}
	p.Revision = revision
	return p, nil
}

// SaveProject rewrites the full document if the stored revision still equals
// p.Revision. A stale revision yields ErrConflict; on success p.Revision advances.
func (s *Store) SaveProject(ctx context.Context, p *project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	next := p.Revision + 1

	doc := *p
	doc.UpdatedAt = now
	doc.Revision = next
	raw, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("%w: marshal project: %w", perrors.ErrPersistence, err)
	}

	query := `
	UPDATE projects
	SET name = ?, status = ?, progress = ?, document = ?, revision = ?, updated_at = ?
	WHERE id = ? AND revision = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		p.Name, string(p.Status), p.Progress, string(raw), next, now.UnixMilli(),
		p.ID, p.Revision,
	)
	if err != nil {
		return fmt.Errorf("%w: save project: %w", perrors.ErrPersistence, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", perrors.ErrPersistence, err)
	}
	if rows == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("%w: save project: %w", perrors.ErrPersistence, err)
		}
		if exists == 0 {
			return fmt.Errorf("project %s: %w", p.ID, perrors.ErrNotFound)
		}
		return fmt.Errorf("project %s revision %d: %w", p.ID, p.Revision, perrors.ErrConflict)
	}

	p.Revision = next
	p.UpdatedAt = now
	return nil
}

// ListProjectsByOwner returns the owner's projects, most recently updated first.
func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*project.Project, error) {
	return s.listProjects(ctx, `SELECT document, revision FROM projects WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
}

// ListActiveProjects returns projects left queued or generating.
func (s *Store) ListActiveProjects(ctx context.Context) ([]*project.Project, error) {
	return s.listProjects(ctx, `SELECT document, revision FROM projects WHERE status IN (?, ?) ORDER BY updated_at`,
		string(project.StatusQueued), string(project.StatusGenerating))
}

func (s *Store) listProjects(ctx context.Context, query string, args ...interface{}) ([]*project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list projects: %w", perrors.ErrPersistence, err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		var doc string
		var revision int64
		if err := rows.Scan(&doc, &revision); err != nil {
			return nil, fmt.Errorf("%w: scan project: %w", perrors.ErrPersistence, err)
		}
		p, err := decodeProject(doc)
		if err != nil {
			return nil, err
		}
		p.Revision = revision
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate projects: %w", perrors.ErrPersistence, err)
	}
	return projects, nil
}

// DeleteProject removes the project and, through the foreign key, its runs.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete project: %w", perrors.ErrPersistence, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", perrors.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	return nil
}

func decodeProject(doc string) (*project.Project, error) {
	var p project.Project
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("%w: decode project: %w", perrors.ErrPersistence, err)
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("%w: project %s has unknown status %q", perrors.ErrPersistence, p.ID, p.Status)
	}
	return &p, nil
}
