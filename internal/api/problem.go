package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problem describes how one error class is rendered.
type problem struct {
	status int
	typ    string
	title  string
}

var internalProblem = problem{fiber.StatusInternalServerError, "internal_error", "Internal Server Error"}

// classify maps the error taxonomy onto HTTP problems.
func classify(err error) problem {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return problem{fe.Code, "http_error", fiberTitle(fe.Code)}
	case errors.Is(err, perrors.ErrValidation):
		return problem{fiber.StatusBadRequest, "validation_failed", "Bad Request"}
	case errors.Is(err, perrors.ErrUnauthenticated):
		return problem{fiber.StatusUnauthorized, "unauthenticated", "Unauthorized"}
	case errors.Is(err, perrors.ErrUnauthorized):
		return problem{fiber.StatusForbidden, "forbidden", "Forbidden"}
	case errors.Is(err, perrors.ErrNotFound):
		return problem{fiber.StatusNotFound, "not_found", "Not Found"}
	case errors.Is(err, perrors.ErrConflict), errors.Is(err, perrors.ErrInvalidTransition):
		return problem{fiber.StatusConflict, "conflict", "Conflict"}
	case errors.Is(err, perrors.ErrRateLimit):
		return problem{fiber.StatusTooManyRequests, "rate_limit_exceeded", "Too Many Requests"}
	case errors.Is(err, perrors.ErrUnavailable):
		return problem{fiber.StatusServiceUnavailable, "unavailable", "Service Unavailable"}
	default:
		return internalProblem
	}
}

func fiberTitle(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusMethodNotAllowed:
		return "Method Not Allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "Payload Too Large"
	case fiber.StatusBadRequest:
		return "Bad Request"
	default:
		return "Error"
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
