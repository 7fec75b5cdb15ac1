package generator

import (
	"context"
	"fmt"
	"sync"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// Fake is a deterministic Provider for tests and local runs without a model.
type Fake struct {
	// Paths is the plan returned by Plan.
	Paths []string
	// PlanErr, when set, is returned by Plan.
	PlanErr error
	// Errors maps a path to the error Generate returns for it every time.
	Errors map[string]error
	// Flaky maps a path to a number of retryable failures before it succeeds.
	Flaky map[string]int
	// Content overrides the generated content per path.
	Content map[string]string
	// Modules is returned by Questionnaire.
	Modules []Module

	// Started, if set, receives each path when Generate begins.
	Started chan string
	// Gate, if set, must yield a value before each Generate returns.
	Gate chan struct{}

	mu        sync.Mutex
	planCalls []PlanRequest
	genCalls  []string
	qCalls    int
	flakes    map[string]int
}

var _ Provider = (*Fake)(nil)

func (f *Fake) Plan(ctx context.Context, req PlanRequest) ([]string, error) {
	f.mu.Lock()
	f.planCalls = append(f.planCalls, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.PlanErr != nil {
		return nil, f.PlanErr
	}
	return append([]string{}, f.Paths...), nil
}

func (f *Fake) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	f.genCalls = append(f.genCalls, req.Path)
	if f.flakes == nil {
		f.flakes = make(map[string]int)
	}
	f.flakes[req.Path]++
	attempt := f.flakes[req.Path]
	f.mu.Unlock()

	if f.Started != nil {
		select {
		case f.Started <- req.Path:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if err, ok := f.Errors[req.Path]; ok {
		return "", err
	}
	if n := f.Flaky[req.Path]; attempt <= n {
		return "", fmt.Errorf("fake %s attempt %d: %w", req.Path, attempt, perrors.ErrUnavailable)
	}
	if c, ok := f.Content[req.Path]; ok {
		return c, nil
	}
	return fmt.Sprintf("// %s (call %d)\n// generated for: %s\n", req.Path, attempt, req.Specification), nil
}

func (f *Fake) Questionnaire(ctx context.Context, specification string) ([]Module, error) {
	f.mu.Lock()
	f.qCalls++
	f.mu.Unlock()
	if f.Modules == nil {
		return []Module{}, nil
	}
	return append([]Module{}, f.Modules...), nil
}

// PlanCalls returns the plan requests received so far.
func (f *Fake) PlanCalls() []PlanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PlanRequest{}, f.planCalls...)
}

// GenerateCalls returns the paths passed to Generate, in call order.
func (f *Fake) GenerateCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.genCalls...)
}

// QuestionnaireCalls returns how many times Questionnaire was called.
func (f *Fake) QuestionnaireCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qCalls
}
