package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

func TestUserPrompt(t *testing.T) {
	req := UserPrompt("be terse", "hello")
	assert.Equal(t, "be terse", req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Content)
}

func TestOptions_EmptyModelKeepsDefault(t *testing.T) {
	p := NewGeminiProvider("k", WithModel(""))
	assert.Equal(t, geminiDefaultModel, p.ModelID())

	a := NewAnthropicProvider("k", WithModel("claude-x"), WithMaxTokens(100))
	assert.Equal(t, "claude-x", a.ModelID())
	assert.Equal(t, 100, a.MaxTokens())
}

func TestAnthropic_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("secret", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), UserPrompt("sys", "hi"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, StopReasonEndTurn, resp.StopReason)
	assert.Equal(t, 5, resp.InputTokens)
	assert.Equal(t, anthropicDefaultModel, got.Model)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestAnthropic_StatusMapsToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), UserPrompt("", "hi"))
	require.Error(t, err)

	var apiErr *perrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "slow down")
	assert.True(t, perrors.IsRetryable(err))
}

func TestGemini_Complete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gkey", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[\"a.js\"]"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("gkey", WithBaseURL(srv.URL))
	req := UserPrompt("plan files", "todo app")
	req.JSON = true
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, `["a.js"]`, resp.Text)
	assert.Equal(t, StopReasonEndTurn, resp.StopReason)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "plan files", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
}

func TestGemini_MaxTokensAndAssistantRole(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"partial"}]},"finishReason":"MAX_TOKENS"}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	}})
	require.NoError(t, err)
	assert.Equal(t, StopReasonMaxTokens, resp.StopReason)
	require.Len(t, got.Contents, 2)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Nil(t, got.SystemInstruction)
}

func TestGemini_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/empty:generateContent" {
			w.Write([]byte(`{"candidates":[]}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("bad", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), UserPrompt("", "hi"))
	var apiErr *perrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "INVALID_ARGUMENT")
	assert.False(t, perrors.IsRetryable(err))

	req := UserPrompt("", "hi")
	req.Model = "empty"
	_, err = p.Complete(context.Background(), req)
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "no candidates")
}
