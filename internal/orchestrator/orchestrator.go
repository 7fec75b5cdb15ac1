// Package orchestrator owns the project run lifecycle: it starts runs, drives
// the per-artifact loop with checkpoints, and serves owner-scoped reads and
// commands to the API.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/generator"
	"github.com/p-blackswan/project-builder/internal/metrics"
	"github.com/p-blackswan/project-builder/internal/project"
	"github.com/p-blackswan/project-builder/internal/store"
	"github.com/p-blackswan/project-builder/lru"
)

// Store is the persistence the orchestrator needs. *store.Store implements it.
type Store interface {
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	SaveProject(ctx context.Context, p *project.Project) error
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]*project.Project, error)
	ListActiveProjects(ctx context.Context) ([]*project.Project, error)
	DeleteProject(ctx context.Context, id string) error

	SaveRun(ctx context.Context, r *store.Run) error
	FinishRun(ctx context.Context, r *store.Run) error
	ListRuns(ctx context.Context, projectID string) ([]*store.Run, error)
	FailInterruptedRuns(ctx context.Context) (int64, error)
}

// Config tunes provider calls.
type Config struct {
	// CallTimeout bounds one provider attempt.
	CallTimeout time.Duration
	// Retries is the number of attempts per provider call, including the first.
	Retries        int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout:    90 * time.Second,
		Retries:        3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  10 * time.Second,
	}
}

// CreateInput starts a new project.
type CreateInput struct {
	Name          string
	Specification string
	Configuration project.Config
}

// AmendInput replaces the driving inputs of an existing project.
type AmendInput struct {
	Specification string
	Configuration project.Config
}

// maxCASAttempts bounds read-modify-write retries against concurrent writers
// (a stop or a conversation turn racing a checkpoint).
const maxCASAttempts = 5

// Questionnaire results are cached per specification.
const (
	questionnaireCacheSize = 256
	questionnaireCacheTTL  = time.Hour
)

// errHalt aborts a mutation without saving.
var errHalt = errors.New("halt")

// Orchestrator runs projects. Create it with New and call Shutdown on exit.
type Orchestrator struct {
	store    Store
	provider generator.Provider
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      Config

	locks          *runLocks
	questionnaires *lru.Cache[string, []generator.Module]

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates an orchestrator accepting runs immediately.
func New(st Store, provider generator.Provider, m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:    st,
		provider: provider,
		metrics:  m,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		cfg:      cfg,
		locks:    newRunLocks(),
		ctx:      ctx,
		cancel:   cancel,

		questionnaires: lru.New[string, []generator.Module](questionnaireCacheSize, questionnaireCacheTTL),
	}
	o.running.Store(true)
	return o
}

// Create validates the input, persists a queued project with its v1 baseline
// and starts its run. It returns without waiting for the run.
func (o *Orchestrator) Create(ctx context.Context, owner string, in CreateInput) (*project.Project, error) {
	if !o.running.Load() {
		return nil, fmt.Errorf("%w: shutting down", perrors.ErrUnavailable)
	}

	p, err := project.New(owner, in.Name, in.Specification, in.Configuration)
	if err != nil {
		return nil, err
	}
	p.AppendLog(project.SeverityInfo, "Project queued")

	if err := o.store.CreateProject(ctx, p); err != nil {
		o.metrics.RecordError("orchestrator", perrors.Kind(err))
		return nil, err
	}
	o.locks.tryAcquire(p.ID)

	o.logger.Info().Str("project_id", p.ID).Str("owner", owner).Msg("project created")
	o.launch(p.ID, store.RunInitial)
	return p.Clone(), nil
}

// Amend snapshots the current head, replaces the inputs and starts a new run.
// An amendment against a project with a live run is a conflict.
func (o *Orchestrator) Amend(ctx context.Context, owner, id string, in AmendInput) (*project.Project, error) {
	if !o.running.Load() {
		return nil, fmt.Errorf("%w: shutting down", perrors.ErrUnavailable)
	}
	if _, err := o.authorized(ctx, owner, id); err != nil {
		return nil, err
	}
	if !o.locks.tryAcquire(id) {
		return nil, fmt.Errorf("project %s has a run in progress: %w", id, perrors.ErrConflict)
	}

	p, err := o.mutate(ctx, id, func(p *project.Project) error {
		if err := p.Authorize(owner); err != nil {
			return err
		}
		if p.Status.Active() {
			return fmt.Errorf("project %s is %s: %w", id, p.Status, perrors.ErrConflict)
		}
		label := fmt.Sprintf("v%d", p.CaptureSnapshot())
		if err := p.Amend(in.Specification, in.Configuration); err != nil {
			return err
		}
		if err := p.Transition(project.StatusQueued); err != nil {
			return err
		}
		p.AppendLog(project.SeverityInfo, "Amendment queued (previous head saved as %s)", label)
		return nil
	})
	if err != nil {
		o.locks.release(id)
		return nil, err
	}

	o.logger.Info().Str("project_id", id).Int("versions", len(p.History)).Msg("project amended")
	o.launch(id, store.RunAmend)
	return p, nil
}

// Stop moves a queued or generating project to stopped. Stopping a terminal
// project is a no-op. The run loop observes the stop at its next iteration.
func (o *Orchestrator) Stop(ctx context.Context, owner, id string) (*project.Project, error) {
	p, err := o.mutate(ctx, id, func(p *project.Project) error {
		if err := p.Authorize(owner); err != nil {
			return err
		}
		if p.Status.Terminal() {
			return errHalt
		}
		p.AppendLog(project.SeverityWarn, "Stop requested")
		return p.Transition(project.StatusStopped)
	})
	if errors.Is(err, errHalt) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	o.logger.Info().Str("project_id", id).Msg("stop requested")
	return p, nil
}

// Get returns the full project state.
func (o *Orchestrator) Get(ctx context.Context, owner, id string) (*project.Project, error) {
	return o.authorized(ctx, owner, id)
}

// GetVersion resolves a version reference. Out-of-range snapshots resolve to head.
func (o *Orchestrator) GetVersion(ctx context.Context, owner, id string, ref project.VersionRef) (project.View, error) {
	p, err := o.authorized(ctx, owner, id)
	if err != nil {
		return project.View{}, err
	}
	return p.Resolve(ref), nil
}

// List returns the owner's project summaries, most recently updated first.
func (o *Orchestrator) List(ctx context.Context, owner string) ([]project.Summary, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: owner required", perrors.ErrUnauthenticated)
	}
	projects, err := o.store.ListProjectsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return lo.Map(projects, func(p *project.Project, _ int) project.Summary {
		return p.Summary()
	}), nil
}

// Delete removes the project. A live run notices at its next checkpoint and exits.
func (o *Orchestrator) Delete(ctx context.Context, owner, id string) error {
	if _, err := o.authorized(ctx, owner, id); err != nil {
		return err
	}
	if err := o.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	o.logger.Info().Str("project_id", id).Bool("run_active", o.locks.isHeld(id)).Msg("project deleted")
	return nil
}

// Runs returns the run records of a project, newest first.
func (o *Orchestrator) Runs(ctx context.Context, owner, id string) ([]*store.Run, error) {
	if _, err := o.authorized(ctx, owner, id); err != nil {
		return nil, err
	}
	runs, err := o.store.ListRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return runs, nil
}

// AddTurn appends a conversation turn. It is allowed during a run.
func (o *Orchestrator) AddTurn(ctx context.Context, owner, id string, role project.Role, text string) (*project.Project, error) {
	switch role {
	case project.RoleUser, project.RoleAssistant, project.RoleSystem:
	default:
		return nil, perrors.Validation("unknown role %q", role)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, perrors.Validation("text is required")
	}
	return o.mutate(ctx, id, func(p *project.Project) error {
		if err := p.Authorize(owner); err != nil {
			return err
		}
		p.AppendTurn(role, text)
		return nil
	})
}

// Questionnaire proposes configuration wizard modules for a specification.
// Non-empty results are cached; a provider failure yields an empty list.
func (o *Orchestrator) Questionnaire(ctx context.Context, specification string) ([]generator.Module, error) {
	specification = strings.TrimSpace(specification)
	if specification == "" {
		return nil, perrors.Validation("specification is required")
	}
	if modules, ok := o.questionnaires.Get(specification); ok {
		return modules, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	modules, err := o.provider.Questionnaire(ctx, specification)
	o.metrics.ObserveProviderCall("questionnaire", resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		o.logger.Warn().Err(err).Msg("questionnaire failed")
		return []generator.Module{}, nil
	}
	if len(modules) > 0 {
		o.questionnaires.Put(specification, modules)
	}
	return modules, nil
}

// Recover marks projects left queued or generating by a previous process as
// failed. Artifacts and log are kept. It returns the number of projects marked.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	if n, err := o.store.FailInterruptedRuns(ctx); err != nil {
		return 0, err
	} else if n > 0 {
		o.logger.Info().Int64("runs", n).Msg("closed interrupted run records")
	}

	active, err := o.store.ListActiveProjects(ctx)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, p := range active {
		if o.locks.isHeld(p.ID) {
			continue
		}
		_, err := o.mutate(ctx, p.ID, func(p *project.Project) error {
			if !p.Status.Active() {
				return errHalt
			}
			p.AppendLog(project.SeverityError, "run interrupted by restart")
			return p.Transition(project.StatusFailed)
		})
		switch {
		case err == nil:
			marked++
		case errors.Is(err, errHalt), errors.Is(err, perrors.ErrNotFound):
		default:
			return marked, err
		}
	}
	if marked > 0 {
		o.logger.Warn().Int("projects", marked).Msg("marked interrupted projects failed")
	}
	return marked, nil
}

// Wait blocks until every run task has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops accepting runs, cancels the live ones and waits for them.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.running.Swap(false) {
		return nil
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info().Msg("orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs: %w", ctx.Err())
	}
}

// authorized loads the project and checks ownership.
func (o *Orchestrator) authorized(ctx context.Context, owner, id string) (*project.Project, error) {
	p, err := o.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Authorize(owner); err != nil {
		return nil, err
	}
	return p, nil
}

// mutate applies fn to the freshest stored document and saves it with a
// revision check, re-reading on conflict. fn may run more than once and must
// derive its changes only from its argument. An error from fn aborts without saving
// and is returned together with the project fn saw.
func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(p *project.Project) error) (*project.Project, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		p, err := o.store.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			return p, err
		}
		err = o.store.SaveProject(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, perrors.ErrConflict) {
			return nil, err
		}
		o.logger.Debug().Str("project_id", id).Int("attempt", attempt+1).Msg("revision conflict, retrying")
	}
	return nil, fmt.Errorf("project %s: too many concurrent writers: %w", id, perrors.ErrConflict)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
