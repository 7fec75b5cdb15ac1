// Package generator turns a specification and configuration into a file plan
// and per-file source code. The orchestrator depends only on Provider.
package generator

import (
	"context"

	"github.com/p-blackswan/project-builder/internal/project"
)

// PlanRequest asks for the ordered list of artifact paths to generate.
type PlanRequest struct {
	Specification string
	Configuration project.Config
	// ExistingPaths are the head artifact paths (amend runs), offered as context.
	ExistingPaths []string
}

// GenerateRequest asks for the full content of one artifact.
type GenerateRequest struct {
	Path          string
	Specification string
	Configuration project.Config
	// Existing is the current content when the path already exists in head.
	Existing string
}

// Field types a configuration wizard control may take.
const (
	FieldSelect = "select"
	FieldToggle = "toggle"
	FieldInput  = "input"
	FieldColor  = "color"
)

// Field is one control of a configuration wizard module.
type Field struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Default any      `json:"default,omitempty"`
}

// Module groups related configuration fields for the wizard.
type Module struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Icon        string  `json:"icon"`
	Description string  `json:"description"`
	Config      []Field `json:"config"`
}

// Provider is the generation backend consumed by the orchestrator.
// Implementations must be safe for concurrent use by independent runs.
type Provider interface {
	// Plan returns the repository-relative artifact paths in generation order.
	Plan(ctx context.Context, req PlanRequest) ([]string, error)

	// Generate returns the full content for one path.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Questionnaire proposes configuration wizard modules for a specification.
	// It returns an empty list rather than an error when nothing usable comes back.
	Questionnaire(ctx context.Context, specification string) ([]Module, error)
}
