package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON generates JSON content using the specified model tier
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// Embed returns one embedding vector per text
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Close releases any resources held by the client
	Close() error
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

func (c *GeminiClient) model(tier ModelTier) (*genai.GenerativeModel, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}
	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	return model, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	model, err := c.model(tier)
	if err != nil {
		return "", err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(resp)
}

// GenerateJSON generates JSON content using the specified model tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	model, err := c.model(tier)
	if err != nil {
		return "", err
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}

	return CleanJSONBlock(text), nil
}

// Embed returns one embedding per text using a single batch request
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := c.client.EmbeddingModel(c.config.EmbeddingModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// Backend exposes a Client as the gateway backend for the generation dependency
type Backend struct {
	client Client
}

// NewBackend wraps client for registration with the gateway
func NewBackend(client Client) *Backend {
	return &Backend{client: client}
}

// Operations lists the gateway operations this backend serves
func (b *Backend) Operations() []string {
	return []string{gateway.OpGenerateText, gateway.OpGenerateJSON, gateway.OpEmbed}
}

// Call implements gateway.Backend.
func (b *Backend) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	switch op {
	case gateway.OpGenerateText, gateway.OpGenerateJSON:
		var req gateway.TextRequest
		if err := gateway.DecodePayload(op, payload, &req); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Prompt) == "" {
			return nil, &types.FatalError{Op: op, Err: errors.New("prompt is empty")}
		}

		var text string
		var err error
		if op == gateway.OpGenerateJSON {
			text, err = b.client.GenerateJSON(ctx, req.Prompt, TierFor(req.Tier))
		} else {
			text, err = b.client.GenerateContent(ctx, req.Prompt, TierFor(req.Tier))
		}
		if err != nil {
			return nil, classifyError(op, err)
		}
		return json.Marshal(gateway.TextResponse{Text: text})

	case gateway.OpEmbed:
		var req gateway.EmbedRequest
		if err := gateway.DecodePayload(op, payload, &req); err != nil {
			return nil, err
		}
		vectors, err := b.client.Embed(ctx, req.Texts)
		if err != nil {
			return nil, classifyError(op, err)
		}
		return json.Marshal(gateway.EmbedResponse{Vectors: vectors})

	default:
		return nil, &types.FatalError{Op: op, Err: fmt.Errorf("operation not supported by generation backend")}
	}
}

// classifyError maps provider errors onto the error taxonomy. Rate limits and
// server errors are transient; rejected or unauthorized requests are fatal.
func classifyError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return &types.TransientError{Op: op, Err: err}
		case apiErr.Code >= http.StatusBadRequest:
			return &types.FatalError{Op: op, Err: err}
		}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) && blocked.PromptFeedback != nil {
		// The prompt itself was rejected; resending it cannot help.
		return &types.FatalError{Op: op, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	return &types.TransientError{Op: op, Err: err}
}
