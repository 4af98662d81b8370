package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
)

const (
	anthropicAPI       = "https://api.anthropic.com/v1/messages"
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// AnalysisClient dispatches an analysis request to the backend owning the
// resolved model: Gemini models go through the Vertex AI SDK, Claude models
// through the raw authenticated messages endpoint.
type AnalysisClient struct {
	vertex       *gcp.VertexClient
	httpClient   *http.Client
	anthropicKey string
}

// NewAnalysisClient creates the dual-backend analyzer. The Anthropic key may
// be empty; Claude models then fail the individual call, which the caller
// surfaces inline.
func NewAnalysisClient(vertex *gcp.VertexClient, anthropicKey string) *AnalysisClient {
	return &AnalysisClient{
		vertex:       vertex,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		anthropicKey: anthropicKey,
	}
}

// Analyze runs one analysis call against the model's backend. No internal
// retry: a failure here is caught by the caller and surfaced in the output
// artifact.
func (c *AnalysisClient) Analyze(ctx context.Context, modelID, prompt string) (string, error) {
	if strings.HasPrefix(modelID, "claude") {
		return c.analyzeClaude(ctx, modelID, prompt)
	}
	return c.vertex.Generate(ctx, modelID, prompt)
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnalysisClient) analyzeClaude(ctx context.Context, modelID, prompt string) (string, error) {
	if c.anthropicKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY is not set; cannot use model %s", modelID)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     modelID,
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPI, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-api-key", c.anthropicKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("api returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var builder strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("model %s returned no text content", modelID)
	}
	return text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
