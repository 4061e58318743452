package render

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

func mediaPayload(t *testing.T, req gateway.MediaRequest) []byte {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestServiceBackend_Success(t *testing.T) {
	var gotAuth string
	var gotBody gateway.MediaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "video/webm")
		_, _ = w.Write([]byte("VIDEO"))
	}))
	defer srv.Close()

	b := NewServiceBackend(srv.URL, "secret", time.Second)
	raw, err := b.Call(context.Background(), gateway.OpRenderMedia, mediaPayload(t, gateway.MediaRequest{ProjectID: "p1", Title: "Demo", Script: "Scene"}))
	require.NoError(t, err)

	var resp gateway.MediaResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "video/webm", resp.ContentType)
	assert.Equal(t, []byte("VIDEO"), resp.Data)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "p1", gotBody.ProjectID)
}

func TestServiceBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			b := NewServiceBackend(srv.URL, "", time.Second)
			_, err := b.Call(context.Background(), gateway.OpRenderMedia, mediaPayload(t, gateway.MediaRequest{Script: "x"}))
			require.Error(t, err)
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestServiceBackend_UnreachableIsTransient(t *testing.T) {
	b := NewServiceBackend("http://127.0.0.1:1", "", time.Second)
	_, err := b.Call(context.Background(), gateway.OpRenderMedia, mediaPayload(t, gateway.MediaRequest{Script: "x"}))
	assert.True(t, types.IsRetryable(err))
}

func TestStoryboardBackend(t *testing.T) {
	raw, err := StoryboardBackend{}.Call(context.Background(), gateway.OpRenderMedia,
		mediaPayload(t, gateway.MediaRequest{Title: "Demo <1>", Script: "Scene 1\n\nScene 2 & more"}))
	require.NoError(t, err)

	var resp gateway.MediaResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "image/svg+xml", resp.ContentType)
	svg := string(resp.Data)
	assert.Equal(t, 2, strings.Count(svg, "<rect"))
	assert.Contains(t, svg, "Demo &lt;1&gt;")
	assert.Contains(t, svg, "Scene 2 &amp; more")
}

func TestStoryboardBackend_EmptyScriptIsFatal(t *testing.T) {
	_, err := StoryboardBackend{}.Call(context.Background(), gateway.OpRenderMedia, mediaPayload(t, gateway.MediaRequest{Script: "  \n "}))
	var fatal *types.FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestBrowserBackend_RequiresHTML(t *testing.T) {
	_, err := NewBrowserBackend().Call(context.Background(), gateway.OpRenderMedia, mediaPayload(t, gateway.MediaRequest{Script: "x"}))
	var fatal *types.FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestBackends_RejectOtherOperations(t *testing.T) {
	backends := []gateway.Backend{NewBrowserBackend(), NewServiceBackend("http://x", "", 0), StoryboardBackend{}}
	for _, b := range backends {
		_, err := b.Call(context.Background(), gateway.OpGenerateText, []byte(`{}`))
		var fatal *types.FatalError
		assert.ErrorAs(t, err, &fatal)
	}
}
