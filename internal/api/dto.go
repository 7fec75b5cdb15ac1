package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/project"
)

// --- Requests ---

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name          string         `json:"name" validate:"max=200"`
	Specification string         `json:"specification" validate:"required,max=20000"`
	Configuration map[string]any `json:"configuration"`
}

// AmendProjectRequest is the body of POST /projects/:id/amend.
type AmendProjectRequest struct {
	Specification string         `json:"specification" validate:"required,max=20000"`
	Configuration map[string]any `json:"configuration"`
}

// AddTurnRequest is the body of POST /projects/:id/conversation.
type AddTurnRequest struct {
	Role string `json:"role" validate:"required,oneof=user assistant system"`
	Text string `json:"text" validate:"required,max=20000"`
}

// QuestionnaireRequest is the body of POST /questionnaire.
type QuestionnaireRequest struct {
	Specification string `json:"specification" validate:"required,max=20000"`
}

// --- Responses ---

// ProjectDetail is the full state of a project. History is reduced to its labels.
type ProjectDetail struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Status        project.Status     `json:"status"`
	Progress      int                `json:"progress"`
	Specification string             `json:"specification"`
	Configuration project.Config     `json:"configuration"`
	Artifacts     project.Artifacts  `json:"artifacts"`
	Versions      int                `json:"versions"`
	History       []string           `json:"history"`
	Log           []project.LogEntry `json:"log"`
	Conversation  []project.Turn     `json:"conversation"`
	Revision      int64              `json:"revision"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newProjectDetail(p *project.Project) ProjectDetail {
	return ProjectDetail{
		ID:            p.ID,
		Name:          p.Name,
		Status:        p.Status,
		Progress:      p.Progress,
		Specification: p.Specification,
		Configuration: p.Configuration,
		Artifacts:     p.Artifacts,
		Versions:      len(p.History),
		History:       lo.Map(p.History, func(s project.Snapshot, _ int) string { return s.Label }),
		Log:           p.Log,
		Conversation:  p.Conversation,
		Revision:      p.Revision,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// --- Binding ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return perrors.Validation("invalid request body: %s", formatValidationError(err))
	}
	if err := validate.Struct(dst); err != nil {
		return perrors.Validation("%s", formatValidationError(err))
	}
	return nil
}

// formatValidationError renders validator and JSON decoding errors as
// client-facing messages.
func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return strings.Join(lo.Map(verrs, func(e validator.FieldError, _ int) string {
			return formatFieldError(e)
		}), "; ")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field '%s' should be %s", typeErr.Field, typeErr.Type.String())
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "invalid JSON format"
	}
	return err.Error()
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("field '%s' validation failed on '%s' tag", field, e.Tag())
	}
}
