package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// maxMediaBytes bounds how much a rendering service may return
const maxMediaBytes = 256 << 20

// ServiceBackend posts render requests to an external video rendering service
type ServiceBackend struct {
	URL    string
	APIKey string
	client *http.Client
}

// NewServiceBackend creates a backend for the rendering service at url
func NewServiceBackend(url, apiKey string, timeout time.Duration) *ServiceBackend {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ServiceBackend{
		URL:    url,
		APIKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Call implements gateway.Backend.
func (s *ServiceBackend) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op != gateway.OpRenderMedia {
		return nil, &types.FatalError{Op: op, Err: errors.New("operation not supported by rendering service")}
	}
	var req gateway.MediaRequest
	if err := gateway.DecodePayload(op, payload, &req); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, &types.FatalError{Op: op, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &types.TransientError{Op: op, Err: fmt.Errorf("rendering service unreachable: %w", err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, &types.TransientError{Op: op, Err: fmt.Errorf("failed to read render output: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, &types.TransientError{Op: op, Err: fmt.Errorf("rendering service returned %d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &types.FatalError{Op: op, Err: fmt.Errorf("rendering service rejected request: %d %s", resp.StatusCode, truncate(body, 200))}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return json.Marshal(gateway.MediaResponse{ContentType: contentType, Data: body})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
