package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient wraps the Vertex AI generative client. The model is chosen per
// request, since the active model identifier is configuration, not code.
type VertexClient struct {
	baseClient *genai.Client
}

// NewVertexClient creates a new Vertex AI client for the given project and
// region.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{baseClient: baseClient}, nil
}

// Generate sends a single text prompt to the named model and returns the
// concatenated text parts of the first candidate. A response carrying no text
// parts is an error: the caller needs prose, not a silently empty string.
func (c *VertexClient) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	model := c.baseClient.GenerativeModel(modelID)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from %s: %w", modelID, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model %s returned a response with no content", modelID)
	}

	var builder strings.Builder
	var textParts int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
			textParts++
		}
	}
	if textParts == 0 {
		return "", fmt.Errorf("model %s returned no text parts", modelID)
	}
	return strings.TrimSpace(builder.String()), nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
