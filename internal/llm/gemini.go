package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

const (
	geminiAPIBase      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.5-flash"
)

// GeminiProvider implements LLMProvider over the Generative Language
// generateContent endpoint.
type GeminiProvider struct {
	apiKey string
	clientOptions
}

// NewGeminiProvider constructs a new Gemini provider.
func NewGeminiProvider(apiKey string, opts ...Option) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:        apiKey,
		clientOptions: newClientOptions(geminiDefaultModel, geminiAPIBase, opts),
	}
	p.logger = p.logger.With().Str("component", "llm").Str("provider", "gemini").Logger()
	return p
}

func (p *GeminiProvider) ModelID() string { return p.model }
func (p *GeminiProvider) MaxTokens() int  { return p.maxTokens }

// ---- Gemini wire types ----

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (p *GeminiProvider) buildRequest(req CompletionRequest) (string, geminiRequest) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	maxTok := p.maxTokens
	if req.MaxTokens > 0 {
		maxTok = req.MaxTokens
	}

	gr := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTok,
			Temperature:     req.Temperature,
		},
	}
	if req.JSON {
		gr.GenerationConfig.ResponseMimeType = "application/json"
	}
	if req.SystemPrompt != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		gr.Contents = append(gr.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return model, gr
}

// Complete sends a blocking generateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model, gr := p.buildRequest(req)
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini http: %w", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var decoded geminiResponse
	jsonErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if jsonErr == nil && decoded.Error != nil {
			msg = decoded.Error.Status + ": " + decoded.Error.Message
		}
		return nil, perrors.NewAPIError("gemini", resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("unmarshal response: %w", jsonErr)
	}
	if len(decoded.Candidates) == 0 {
		return nil, perrors.NewAPIError("gemini", resp.StatusCode, "response has no candidates")
	}

	cand := decoded.Candidates[0]
	out := &CompletionResponse{
		StopReason:   StopReasonEndTurn,
		InputTokens:  decoded.UsageMetadata.PromptTokenCount,
		OutputTokens: decoded.UsageMetadata.CandidatesTokenCount,
	}
	if cand.FinishReason == "MAX_TOKENS" {
		out.StopReason = StopReasonMaxTokens
	}
	for _, part := range cand.Content.Parts {
		out.Text += part.Text
	}

	p.logger.Debug().
		Str("model", model).
		Str("finish_reason", cand.FinishReason).
		Int("in_tokens", out.InputTokens).
		Int("out_tokens", out.OutputTokens).
		Msg("gemini complete")
	return out, nil
}
