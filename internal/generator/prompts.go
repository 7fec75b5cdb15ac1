package generator

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptSource is the YAML shape of a prompts file.
type PromptSource struct {
	System        string `yaml:"system"`
	Plan          string `yaml:"plan"`
	Generate      string `yaml:"generate"`
	Questionnaire string `yaml:"questionnaire"`
}

// Prompts holds the parsed templates.
type Prompts struct {
	System        string
	plan          *template.Template
	generate      *template.Template
	questionnaire *template.Template
}

type promptData struct {
	Specification string
	Configuration []string
	ExistingPaths []string
	Path          string
	Existing      string
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() (*Prompts, error) {
	src, err := parsePromptSource(defaultPromptsYAML)
	if err != nil {
		return nil, fmt.Errorf("prompts: built-in: %w", err)
	}
	return compilePrompts(src)
}

// LoadPrompts reads a YAML prompts file. Keys missing from the file keep
// the built-in template. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	base, err := parsePromptSource(defaultPromptsYAML)
	if err != nil {
		return nil, fmt.Errorf("prompts: built-in: %w", err)
	}
	if path == "" {
		return compilePrompts(base)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	override, err := parsePromptSource(raw)
	if err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", path, err)
	}
	return compilePrompts(mergePromptSource(base, override))
}

func parsePromptSource(raw []byte) (PromptSource, error) {
	var src PromptSource
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return PromptSource{}, err
	}
	return src, nil
}

func mergePromptSource(base, override PromptSource) PromptSource {
	if override.System != "" {
		base.System = override.System
	}
	if override.Plan != "" {
		base.Plan = override.Plan
	}
	if override.Generate != "" {
		base.Generate = override.Generate
	}
	if override.Questionnaire != "" {
		base.Questionnaire = override.Questionnaire
	}
	return base
}

func compilePrompts(src PromptSource) (*Prompts, error) {
	p := &Prompts{System: src.System}
	var err error
	if p.plan, err = template.New("plan").Option("missingkey=error").Parse(src.Plan); err != nil {
		return nil, fmt.Errorf("prompts: plan template: %w", err)
	}
	if p.generate, err = template.New("generate").Option("missingkey=error").Parse(src.Generate); err != nil {
		return nil, fmt.Errorf("prompts: generate template: %w", err)
	}
	if p.questionnaire, err = template.New("questionnaire").Option("missingkey=error").Parse(src.Questionnaire); err != nil {
		return nil, fmt.Errorf("prompts: questionnaire template: %w", err)
	}
	return p, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// PlanPrompt renders the planning prompt.
func (p *Prompts) PlanPrompt(req PlanRequest) (string, error) {
	return render(p.plan, promptData{
		Specification: req.Specification,
		Configuration: req.Configuration.Lines(),
		ExistingPaths: req.ExistingPaths,
	})
}

// GeneratePrompt renders the per-file prompt.
func (p *Prompts) GeneratePrompt(req GenerateRequest) (string, error) {
	return render(p.generate, promptData{
		Specification: req.Specification,
		Configuration: req.Configuration.Lines(),
		Path:          req.Path,
		Existing:      req.Existing,
	})
}

// QuestionnairePrompt renders the configuration wizard prompt.
func (p *Prompts) QuestionnairePrompt(specification string) (string, error) {
	return render(p.questionnaire, promptData{Specification: specification})
}
