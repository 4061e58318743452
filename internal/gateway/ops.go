package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/ideaforge/internal/types"
)

// Operation names understood by the gateway
const (
	OpGenerateText = "generate_text"
	OpGenerateJSON = "generate_json"
	OpEmbed        = "embed"
	OpRenderMedia  = "render_media"
)

// Dependency names used to key circuit breakers
const (
	DependencyGeneration = "generation"
	DependencyRendering  = "rendering"
)

// Tier selects model capability for generation requests
type Tier string

// Tier constants mirror the model tiers of the LLM backend
const (
	TierLite     Tier = "lite"
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
)

// TextRequest is the payload of generate_text and generate_json.
// Task names what is being generated so backends can log or specialise.
type TextRequest struct {
	Task   string `json:"task"`
	Prompt string `json:"prompt"`
	Tier   Tier   `json:"tier,omitempty"`
}

// TextResponse is the result of generate_text and generate_json
type TextResponse struct {
	Text string `json:"text"`
}

// EmbedRequest is the payload of embed
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse holds one vector per input text, in order
type EmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// MediaRequest is the payload of render_media
type MediaRequest struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Script    string `json:"script"`
	HTML      string `json:"html,omitempty"`
}

// MediaResponse carries rendered media bytes
type MediaResponse struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Invoker is the narrow interface steps use to reach external operations
type Invoker interface {
	Invoke(ctx context.Context, op string, payload []byte, timeout time.Duration) ([]byte, error)
}

// Call marshals req, invokes op and decodes the response into Resp.
// A response that cannot be decoded is treated as transient: generators are
// non-deterministic and a second attempt often succeeds.
func Call[Req, Resp any](ctx context.Context, inv Invoker, op string, req Req, timeout time.Duration) (Resp, error) {
	var resp Resp
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, &types.FatalError{Op: op, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}
	out, err := inv.Invoke(ctx, op, payload, timeout)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return resp, &types.TransientError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return resp, nil
}

// DecodePayload unmarshals a request payload for a backend. Failures are fatal
// because retrying the same bytes cannot succeed.
func DecodePayload(op string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &types.FatalError{Op: op, Err: fmt.Errorf("malformed payload: %w", err)}
	}
	return nil
}
