package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/generator"
	"github.com/p-blackswan/project-builder/internal/project"
	"github.com/p-blackswan/project-builder/internal/retry"
	"github.com/p-blackswan/project-builder/internal/store"
)

// finalWriteTimeout bounds best-effort terminal writes made after the run
// context is gone.
const finalWriteTimeout = 5 * time.Second

// launch starts the run task for a project whose run lock the caller holds.
// The task releases the lock when it exits.
func (o *Orchestrator) launch(id, kind string) {
	o.wg.Add(1)
	o.metrics.RunStarted()
	go func() {
		defer o.wg.Done()
		defer o.locks.release(id)
		defer o.metrics.RunFinished()

		r := &store.Run{ID: uuid.New().String(), ProjectID: id, Kind: kind, Status: string(project.StatusQueued)}
		logger := o.logger.With().Str("project_id", id).Str("run_id", r.ID).Str("kind", kind).Logger()

		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("run panicked: %v", rec)
				logger.Error().Err(err).Msg("run aborted")
				o.fail(id, r, err, logger)
				o.finish(r, logger)
			}
		}()

		if err := o.store.SaveRun(o.ctx, r); err != nil {
			logger.Warn().Err(err).Msg("failed to record run start")
		}
		o.run(o.ctx, id, r, logger)
		o.finish(r, logger)
	}()
}

// run drives one project through queued → generating → terminal.
func (o *Orchestrator) run(ctx context.Context, id string, r *store.Run, logger zerolog.Logger) {
	p, err := o.mutate(ctx, id, func(p *project.Project) error {
		if p.Status != project.StatusQueued {
			return errHalt
		}
		if err := p.Transition(project.StatusGenerating); err != nil {
			return err
		}
		p.AppendLog(project.SeverityInfo, "Planning project files")
		return nil
	})
	switch {
	case errors.Is(err, errHalt):
		r.Status = string(p.Status)
		logger.Info().Str("status", r.Status).Msg("run skipped, project no longer queued")
		return
	case err != nil:
		o.abort(ctx, id, r, err, logger)
		return
	}
	r.Status = string(project.StatusGenerating)
	logger.Info().Msg("run started")

	planReq := generator.PlanRequest{
		Specification: p.Specification,
		Configuration: p.Configuration,
	}
	if r.Kind == store.RunAmend {
		planReq.ExistingPaths = p.Artifacts.Paths()
	}

	var plan []string
	err = o.callProvider(ctx, "plan", logger, func(ctx context.Context) error {
		var perr error
		plan, perr = o.provider.Plan(ctx, planReq)
		return perr
	})
	if err != nil {
		o.abort(ctx, id, r, fmt.Errorf("%w: %w", perrors.ErrPlanning, err), logger)
		return
	}
	r.Planned = len(plan)
	logger.Info().Int("planned", len(plan)).Msg("plan accepted")

	for i, path := range plan {
		// Cancellation point: re-read status before every artifact.
		cur, err := o.mutate(ctx, id, func(p *project.Project) error {
			if p.Status != project.StatusGenerating {
				return errHalt
			}
			p.AppendLog(project.SeverityInfo, "Generating %s (%d/%d)", path, i+1, len(plan))
			return nil
		})
		if errors.Is(err, errHalt) {
			r.Status = string(cur.Status)
			logger.Info().Str("status", r.Status).Int("attempted", r.Attempted).Msg("run halted")
			return
		}
		if err != nil {
			o.abort(ctx, id, r, err, logger)
			return
		}

		req := generator.GenerateRequest{
			Path:          path,
			Specification: p.Specification,
			Configuration: p.Configuration,
		}
		if existing, ok := cur.Artifacts.Get(path); ok {
			req.Existing = existing.Content
		}

		var content string
		genErr := o.callProvider(ctx, "generate", logger, func(ctx context.Context) error {
			var gerr error
			content, gerr = o.provider.Generate(ctx, req)
			return gerr
		})
		if ctx.Err() != nil {
			o.abort(ctx, id, r, ctx.Err(), logger)
			return
		}

		r.Attempted++
		if genErr != nil {
			r.FailedArtifacts++
			o.metrics.RecordArtifact("error")
			logger.Warn().Err(genErr).Str("path", path).Msg("artifact generation failed")
		} else {
			o.metrics.RecordArtifact("ok")
		}

		// Checkpoint. Applied even if a stop landed during the call, so the
		// finished artifact is kept; the next iteration observes the stop.
		progress := project.Progress(i+1, len(plan))
		_, err = o.mutate(ctx, id, func(p *project.Project) error {
			if genErr != nil {
				p.AppendLog(project.SeverityError, "Failed to generate %s: %v", path, genErr)
			} else {
				p.Artifacts.Upsert(path, content)
				p.AppendLog(project.SeveritySuccess, "Generated %s", path)
			}
			p.SetProgress(progress)
			return nil
		})
		if err != nil {
			o.abort(ctx, id, r, err, logger)
			return
		}
	}

	final, err := o.mutate(ctx, id, func(p *project.Project) error {
		if p.Status != project.StatusGenerating {
			return errHalt
		}
		if err := p.Transition(project.StatusCompleted); err != nil {
			return err
		}
		p.AppendLog(project.SeveritySuccess, "Generation complete: %d of %d files written",
			len(plan)-r.FailedArtifacts, len(plan))
		if r.Kind == store.RunAmend {
			p.CaptureSnapshot()
		}
		return nil
	})
	switch {
	case errors.Is(err, errHalt):
		r.Status = string(final.Status)
	case err != nil:
		o.abort(ctx, id, r, err, logger)
	default:
		r.Status = string(project.StatusCompleted)
		logger.Info().Int("attempted", r.Attempted).Int("failed", r.FailedArtifacts).Msg("run completed")
	}
}

// abort ends a run on a fatal error. A deleted project ends the run quietly.
func (o *Orchestrator) abort(ctx context.Context, id string, r *store.Run, err error, logger zerolog.Logger) {
	if errors.Is(err, perrors.ErrNotFound) {
		r.Status = "deleted"
		logger.Info().Msg("project deleted during run")
		return
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("run interrupted by shutdown: %w", ctx.Err())
	}
	logger.Error().Err(err).Str("kind", perrors.Kind(err)).Msg("run failed")
	o.metrics.RecordError("orchestrator", perrors.Kind(err))
	o.fail(id, r, err, logger)
}

// fail writes a best-effort terminal failed state with its log entry.
func (o *Orchestrator) fail(id string, r *store.Run, cause error, logger zerolog.Logger) {
	r.Status = string(project.StatusFailed)
	r.Error = cause.Error()

	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()
	p, err := o.mutate(ctx, id, func(p *project.Project) error {
		if p.Status.Terminal() {
			return errHalt
		}
		p.AppendLog(project.SeverityError, "Run failed: %v", cause)
		return p.Transition(project.StatusFailed)
	})
	switch {
	case errors.Is(err, errHalt):
		// A stop won the race; the project keeps its terminal status.
		r.Status = string(p.Status)
	case err != nil && !errors.Is(err, perrors.ErrNotFound):
		logger.Error().Err(err).Msg("failed to persist failed status")
	}
}

// finish records the run outcome. It outlives the run context.
func (o *Orchestrator) finish(r *store.Run, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()
	if r.Status != "deleted" {
		if err := o.store.FinishRun(ctx, r); err != nil {
			logger.Warn().Err(err).Msg("failed to record run finish")
		}
	}
	o.metrics.RecordRun(r.Kind, r.Status)
}

// callProvider runs one provider operation with a per-attempt timeout and
// retries on transient errors.
func (o *Orchestrator) callProvider(ctx context.Context, op string, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	cfg := retry.Config{
		MaxAttempts:    o.cfg.Retries,
		BaseDelay:      o.cfg.RetryBaseDelay,
		MaxDelay:       o.cfg.RetryMaxDelay,
		Jitter:         true,
		AttemptTimeout: o.cfg.CallTimeout,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("provider call failed, retrying")
		},
	}

	start := time.Now()
	err := retry.Do(ctx, cfg, fn)
	o.metrics.ObserveProviderCall(op, resultLabel(err), time.Since(start).Seconds())
	return err
}
