package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/project-builder/internal/generator"
	"github.com/p-blackswan/project-builder/internal/orchestrator"
	"github.com/p-blackswan/project-builder/internal/project"
	"github.com/p-blackswan/project-builder/internal/store"
)

// Service is the project lifecycle the API exposes. *orchestrator.Orchestrator implements it.
type Service interface {
	Create(ctx context.Context, owner string, in orchestrator.CreateInput) (*project.Project, error)
	Amend(ctx context.Context, owner, id string, in orchestrator.AmendInput) (*project.Project, error)
	Stop(ctx context.Context, owner, id string) (*project.Project, error)
	Get(ctx context.Context, owner, id string) (*project.Project, error)
	GetVersion(ctx context.Context, owner, id string, ref project.VersionRef) (project.View, error)
	List(ctx context.Context, owner string) ([]project.Summary, error)
	Delete(ctx context.Context, owner, id string) error
	Runs(ctx context.Context, owner, id string) ([]*store.Run, error)
	AddTurn(ctx context.Context, owner, id string, role project.Role, text string) (*project.Project, error)
	Questionnaire(ctx context.Context, specification string) ([]generator.Module, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	svc    Service
	logger zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Service, logger zerolog.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: logger.With().Str("component", "handlers").Logger(),
	}
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.svc.Create(c.UserContext(), ownerOf(c), orchestrator.CreateInput{
		Name:          req.Name,
		Specification: req.Specification,
		Configuration: project.Config(req.Configuration),
	})
	if err != nil {
		return err
	}
	c.Location("/api/v1/projects/" + p.ID)
	return c.Status(fiber.StatusAccepted).JSON(newProjectDetail(p))
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	summaries, err := h.svc.List(c.UserContext(), ownerOf(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"projects": summaries,
		"count":    len(summaries),
	})
}

// GetProject handles GET /api/v1/projects/:id. A version query renders that
// version instead of the full state.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	if v := c.Query("version"); v != "" {
		return h.renderVersion(c, v)
	}
	p, err := h.svc.Get(c.UserContext(), ownerOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(newProjectDetail(p))
}

// GetVersion handles GET /api/v1/projects/:id/versions/:n.
func (h *Handlers) GetVersion(c *fiber.Ctx) error {
	return h.renderVersion(c, c.Params("n"))
}

func (h *Handlers) renderVersion(c *fiber.Ctx, raw string) error {
	ref, err := project.ParseVersionRef(raw)
	if err != nil {
		return err
	}
	view, err := h.svc.GetVersion(c.UserContext(), ownerOf(c), c.Params("id"), ref)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// AmendProject handles POST /api/v1/projects/:id/amend.
func (h *Handlers) AmendProject(c *fiber.Ctx) error {
	var req AmendProjectRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.svc.Amend(c.UserContext(), ownerOf(c), c.Params("id"), orchestrator.AmendInput{
		Specification: req.Specification,
		Configuration: project.Config(req.Configuration),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(newProjectDetail(p))
}

// StopProject handles POST /api/v1/projects/:id/stop.
func (h *Handlers) StopProject(c *fiber.Ctx) error {
	p, err := h.svc.Stop(c.UserContext(), ownerOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(newProjectDetail(p))
}

// DeleteProject handles DELETE /api/v1/projects/:id.
func (h *Handlers) DeleteProject(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.UserContext(), ownerOf(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListRuns handles GET /api/v1/projects/:id/runs.
func (h *Handlers) ListRuns(c *fiber.Ctx) error {
	runs, err := h.svc.Runs(c.UserContext(), ownerOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}

// AddTurn handles POST /api/v1/projects/:id/conversation.
func (h *Handlers) AddTurn(c *fiber.Ctx) error {
	var req AddTurnRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p, err := h.svc.AddTurn(c.UserContext(), ownerOf(c), c.Params("id"), project.Role(req.Role), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"conversation": p.Conversation,
	})
}

// Questionnaire handles POST /api/v1/questionnaire.
func (h *Handlers) Questionnaire(c *fiber.Ctx) error {
	var req QuestionnaireRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	modules, err := h.svc.Questionnaire(c.UserContext(), req.Specification)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"modules": modules})
}
