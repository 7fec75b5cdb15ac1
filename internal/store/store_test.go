package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/project"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newProject(t *testing.T, owner string) *project.Project {
	t.Helper()
	p, err := project.New(owner, "demo", "a todo app", project.Config{"db": "sqlite"})
	require.NoError(t, err)
	return p
}

func TestNew_CreatesDB(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"meta", "projects", "runs"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
	assert.Equal(t, 2, s.schemaVersion())
}

func TestNew_FileDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builder.db")
	ctx := context.Background()

	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.Close())

	s, err = New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a todo app", got.Specification)
	assert.Equal(t, 2, s.schemaVersion())
}

func TestProject_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	p.Artifacts.Upsert("server.js", "console.log(1)")
	p.AppendLog(project.SeverityInfo, "Project queued")
	require.NoError(t, s.CreateProject(ctx, p))
	assert.Equal(t, int64(1), p.Revision)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, project.StatusQueued, got.Status)
	assert.Equal(t, "sqlite", got.Configuration["db"])
	assert.Len(t, got.History, 1)
	assert.Len(t, got.Log, 1)
	a, ok := got.Artifacts.Get("server.js")
	require.True(t, ok)
	assert.Equal(t, "javascript", a.Language)

	require.NoError(t, got.Transition(project.StatusGenerating))
	require.NoError(t, s.SaveProject(ctx, got))
	assert.Equal(t, int64(2), got.Revision)

	again, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusGenerating, again.Status)
	assert.Equal(t, int64(2), again.Revision)
}

func TestGetProject_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestGetProject_UnknownStatusIsPersistenceError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))
	_, err := s.db.Exec(`UPDATE projects SET document = json_set(document, '$.status', 'exploded') WHERE id = ?`, p.ID)
	require.NoError(t, err)

	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, perrors.ErrPersistence)
}

func TestSaveProject_StaleRevisionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))

	first, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	second, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)

	first.AppendLog(project.SeverityInfo, "first writer")
	require.NoError(t, s.SaveProject(ctx, first))

	second.AppendLog(project.SeverityInfo, "second writer")
	err = s.SaveProject(ctx, second)
	assert.ErrorIs(t, err, perrors.ErrConflict)
	assert.Equal(t, int64(1), second.Revision)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Log, 1)
	assert.Equal(t, "first writer", got.Log[0].Message)
}

func TestSaveProject_DeletedIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.DeleteProject(ctx, p.ID))

	err := s.SaveProject(ctx, p)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID), perrors.ErrNotFound)
}

func TestListProjectsByOwner_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, older))
	time.Sleep(5 * time.Millisecond)
	newer := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, newer))
	require.NoError(t, s.CreateProject(ctx, newProject(t, "bob")))

	list, err := s.ListProjectsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	none, err := s.ListProjectsByOwner(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListActiveProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queued := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, queued))

	done := newProject(t, "alice")
	require.NoError(t, done.Transition(project.StatusGenerating))
	require.NoError(t, done.Transition(project.StatusCompleted))
	require.NoError(t, s.CreateProject(ctx, done))

	active, err := s.ListActiveProjects(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, queued.ID, active[0].ID)
}

func TestRuns_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))

	r := &Run{ID: "run-1", ProjectID: p.ID, Kind: RunInitial, Status: string(project.StatusGenerating), Planned: 3}
	require.NoError(t, s.SaveRun(ctx, r))
	assert.NotZero(t, r.StartedAt)

	r.Attempted = 3
	r.FailedArtifacts = 1
	r.Status = string(project.StatusCompleted)
	require.NoError(t, s.FinishRun(ctx, r))

	runs, err := s.ListRuns(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Planned)
	assert.Equal(t, 1, runs[0].FailedArtifacts)
	assert.Equal(t, "completed", runs[0].Status)
	assert.NotZero(t, runs[0].FinishedAt)
	assert.Empty(t, runs[0].Error)
}

func TestRuns_CascadeOnProjectDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "run-1", ProjectID: p.ID, Kind: RunInitial, Status: "queued"}))

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	runs, err := s.ListRuns(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFailInterruptedRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "live", ProjectID: p.ID, Kind: RunInitial, Status: "generating"}))
	finished := &Run{ID: "done", ProjectID: p.ID, Kind: RunInitial, Status: "completed"}
	require.NoError(t, s.FinishRun(ctx, finished))

	n, err := s.FailInterruptedRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := s.ListRuns(ctx, p.ID)
	require.NoError(t, err)
	byID := map[string]*Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, "failed", byID["live"].Status)
	assert.Equal(t, "interrupted_by_restart", byID["live"].Error)
	assert.Equal(t, "completed", byID["done"].Status)
}

func TestRunRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newProject(t, "alice")
	require.NoError(t, s.CreateProject(ctx, p))

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "old", ProjectID: p.ID, Kind: RunInitial, Status: "completed", StartedAt: old, FinishedAt: old}))
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "running", ProjectID: p.ID, Kind: RunAmend, Status: "generating", StartedAt: old}))
	require.NoError(t, s.FinishRun(ctx, &Run{ID: "fresh", ProjectID: p.ID, Kind: RunAmend, Status: "completed"}))

	n, err := s.RunRetention(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := s.ListRuns(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	size, err := s.DBSizeBytes()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
