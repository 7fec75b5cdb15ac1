package generator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/llm"
)

// LLMProvider implements Provider on top of a language model backend.
type LLMProvider struct {
	backend llm.LLMProvider
	prompts *Prompts
	logger  zerolog.Logger
}

// NewLLMProvider wires a backend and prompt set into a Provider.
func NewLLMProvider(backend llm.LLMProvider, prompts *Prompts, logger zerolog.Logger) *LLMProvider {
	return &LLMProvider{
		backend: backend,
		prompts: prompts,
		logger:  logger.With().Str("component", "generator").Str("model", backend.ModelID()).Logger(),
	}
}

func (g *LLMProvider) complete(ctx context.Context, prompt string, jsonOut bool) (*llm.CompletionResponse, error) {
	req := llm.UserPrompt(g.prompts.System, prompt)
	req.JSON = jsonOut
	return g.backend.Complete(ctx, req)
}

// Plan asks the model for the file plan. Backend errors are returned as is so
// callers can classify them as retryable; unparseable output is ErrMalformedPlan.
func (g *LLMProvider) Plan(ctx context.Context, req PlanRequest) ([]string, error) {
	prompt, err := g.prompts.PlanPrompt(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.complete(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	paths, err := ParsePlan(resp.Text)
	if err != nil {
		g.logger.Warn().Err(err).Int("raw_len", len(resp.Text)).Msg("plan output rejected")
		return nil, err
	}
	g.logger.Debug().Int("paths", len(paths)).Int("existing", len(req.ExistingPaths)).Msg("plan received")
	return paths, nil
}

// Generate asks the model for one file's content.
func (g *LLMProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	prompt, err := g.prompts.GeneratePrompt(req)
	if err != nil {
		return "", err
	}
	resp, err := g.complete(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	if resp.StopReason == llm.StopReasonMaxTokens {
		g.logger.Warn().Str("path", req.Path).Msg("output truncated at max tokens")
	}
	code := CleanCode(resp.Text)
	if code == "" {
		return "", fmt.Errorf("%w: empty content for %s", perrors.ErrArtifact, req.Path)
	}
	return code, nil
}

// Questionnaire never fails: provider and parse errors yield an empty list.
func (g *LLMProvider) Questionnaire(ctx context.Context, specification string) ([]Module, error) {
	prompt, err := g.prompts.QuestionnairePrompt(specification)
	if err != nil {
		g.logger.Error().Err(err).Msg("questionnaire prompt")
		return []Module{}, nil
	}
	resp, err := g.complete(ctx, prompt, true)
	if err != nil {
		g.logger.Warn().Err(err).Msg("questionnaire request failed")
		return []Module{}, nil
	}
	return ParseModules(resp.Text), nil
}
