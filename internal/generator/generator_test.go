package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/llm"
	"github.com/p-blackswan/project-builder/internal/project"
)

type stubBackend struct {
	replies []string
	err     error
	stop    string
	prompts []llm.CompletionRequest
}

func (s *stubBackend) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return nil, s.err
	}
	text := ""
	if len(s.replies) > 0 {
		text, s.replies = s.replies[0], s.replies[1:]
	}
	stop := s.stop
	if stop == "" {
		stop = llm.StopReasonEndTurn
	}
	return &llm.CompletionResponse{Text: text, StopReason: stop}, nil
}

func (s *stubBackend) ModelID() string { return "stub" }
func (s *stubBackend) MaxTokens() int  { return 1024 }

func newTestProvider(t *testing.T, backend *stubBackend) *LLMProvider {
	t.Helper()
	prompts, err := DefaultPrompts()
	require.NoError(t, err)
	return NewLLMProvider(backend, prompts, zerolog.Nop())
}

func TestCleanCode(t *testing.T) {
	cases := map[string]string{
		"```javascript\nconst a = 1;\n```": "const a = 1;",
		"```\nplain\n```":                  "plain",
		"no fences":                        "no fences",
		"  \n```go\npackage main\n```  \n": "package main",
		"inner ``` stays\n":                "inner ``` stays",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanCode(in), "input %q", in)
	}
}

func TestParsePlan(t *testing.T) {
	paths, err := ParsePlan("```json\n[\"server.js\", \"client/App.jsx\", \"server.js\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"server.js", "client/App.jsx", "server.js"}, paths)

	paths, err = ParsePlan("```json\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NotNil(t, paths)
}

func TestParsePlan_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json",
		"null",
		"```json\nnull\n```",
		`"a.js"`,
		`{"files": ["a.js"]}`,
		`["a.js", 3]`,
		`["a.js", "  "]`,
		`["/etc/passwd"]`,
		`["src/../../escape.js"]`,
	} {
		_, err := ParsePlan(raw)
		assert.ErrorIs(t, err, perrors.ErrMalformedPlan, "input %q", raw)
	}
}

func TestParseModules(t *testing.T) {
	raw := "```json\n" + `[
		{"id":"auth","label":"Auth","icon":"Lock","description":"login","config":[
			{"key":"provider","label":"Provider","type":"select","options":["JWT","OAuth"],"default":"JWT"},
			{"key":"mfa","label":"MFA","type":"toggle","default":false},
			{"key":"bad","label":"Bad","type":"slider"},
			{"key":"empty_select","label":"X","type":"select"}
		]},
		{"id":"","label":"no id"}
	]` + "\n```"

	modules := ParseModules(raw)
	require.Len(t, modules, 1)
	assert.Equal(t, "auth", modules[0].ID)
	require.Len(t, modules[0].Config, 2)
	assert.Equal(t, "provider", modules[0].Config[0].Key)
	assert.Equal(t, false, modules[0].Config[1].Default)

	assert.Equal(t, []Module{}, ParseModules("oops"))
	assert.Equal(t, []Module{}, ParseModules(`{"id":"x"}`))
}

func TestPrompts_RenderConfigurationAndContext(t *testing.T) {
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	out, err := prompts.PlanPrompt(PlanRequest{
		Specification: "a kanban board",
		Configuration: project.Config{"db": "postgres", "auth": true},
		ExistingPaths: []string{"server.js"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "a kanban board")
	assert.Contains(t, out, "- auth: true")
	assert.Contains(t, out, "- db: postgres")
	assert.Contains(t, out, "- server.js")
	assert.Contains(t, out, "Return only the paths that must be created or changed")

	out, err = prompts.PlanPrompt(PlanRequest{Specification: "a kanban board"})
	require.NoError(t, err)
	assert.NotContains(t, out, "created or changed")

	out, err = prompts.GeneratePrompt(GenerateRequest{Path: "models/Task.js", Specification: "a kanban board"})
	require.NoError(t, err)
	assert.Contains(t, out, `"models/Task.js"`)
	assert.Contains(t, out, "(none)")
}

func TestLoadPrompts_OverrideMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan: |\n  PLAN FOR {{ .Specification }}\n"), 0o600))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)

	out, err := prompts.PlanPrompt(PlanRequest{Specification: "chat app"})
	require.NoError(t, err)
	assert.Equal(t, "PLAN FOR chat app\n", out)

	out, err = prompts.GeneratePrompt(GenerateRequest{Path: "a.js", Specification: "chat app"})
	require.NoError(t, err)
	assert.Contains(t, out, "production-ready")
	assert.NotEmpty(t, prompts.System)
}

func TestLoadPrompts_Errors(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plan: \"{{ .Specification \"\n"), 0o600))
	_, err = LoadPrompts(path)
	assert.Error(t, err)
}

func TestLLMProvider_Plan(t *testing.T) {
	backend := &stubBackend{replies: []string{`["package.json","server.js"]`}}
	g := newTestProvider(t, backend)

	paths, err := g.Plan(context.Background(), PlanRequest{Specification: "todo api"})
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", "server.js"}, paths)
	require.Len(t, backend.prompts, 1)
	assert.True(t, backend.prompts[0].JSON)
	assert.Contains(t, backend.prompts[0].Messages[0].Content, "todo api")
}

func TestLLMProvider_PlanErrors(t *testing.T) {
	g := newTestProvider(t, &stubBackend{replies: []string{"here are your files: a.js"}})
	_, err := g.Plan(context.Background(), PlanRequest{Specification: "x"})
	assert.ErrorIs(t, err, perrors.ErrMalformedPlan)

	apiErr := perrors.NewAPIError("gemini", 503, "overloaded")
	g = newTestProvider(t, &stubBackend{err: apiErr})
	_, err = g.Plan(context.Background(), PlanRequest{Specification: "x"})
	assert.True(t, perrors.IsRetryable(err))
}

func TestLLMProvider_Generate(t *testing.T) {
	g := newTestProvider(t, &stubBackend{replies: []string{"```js\nmodule.exports = {};\n```", "```\n```"}, stop: llm.StopReasonMaxTokens})

	code, err := g.Generate(context.Background(), GenerateRequest{Path: "index.js", Specification: "x"})
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {};", code)

	_, err = g.Generate(context.Background(), GenerateRequest{Path: "empty.js", Specification: "x"})
	assert.ErrorIs(t, err, perrors.ErrArtifact)
}

func TestLLMProvider_QuestionnaireNeverFails(t *testing.T) {
	g := newTestProvider(t, &stubBackend{err: errors.New("boom")})
	modules, err := g.Questionnaire(context.Background(), "shop")
	require.NoError(t, err)
	assert.Equal(t, []Module{}, modules)

	g = newTestProvider(t, &stubBackend{replies: []string{`[{"id":"core","label":"Core","config":[{"key":"port","label":"Port","type":"input","default":5000}]}]`}})
	modules, err = g.Questionnaire(context.Background(), "shop")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, float64(5000), modules[0].Config[0].Default)
}

func TestFake(t *testing.T) {
	f := &Fake{
		Paths:  []string{"a.js", "b.js"},
		Errors: map[string]error{"b.js": errors.New("nope")},
		Flaky:  map[string]int{"a.js": 1},
	}
	ctx := context.Background()

	paths, err := f.Plan(ctx, PlanRequest{Specification: "s"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "b.js"}, paths)

	_, err = f.Generate(ctx, GenerateRequest{Path: "a.js"})
	assert.True(t, perrors.IsRetryable(err))
	content, err := f.Generate(ctx, GenerateRequest{Path: "a.js", Specification: "s"})
	require.NoError(t, err)
	assert.Contains(t, content, "a.js")

	_, err = f.Generate(ctx, GenerateRequest{Path: "b.js"})
	assert.EqualError(t, err, "nope")

	assert.Equal(t, []string{"a.js", "a.js", "b.js"}, f.GenerateCalls())
	assert.Len(t, f.PlanCalls(), 1)
}
