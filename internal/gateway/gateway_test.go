package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/types"
)

func newTestGateway(cooldown time.Duration) *Gateway {
	return New(BreakerSettings{Threshold: 5, Window: time.Minute, Cooldown: cooldown}, time.Second, zerolog.Nop())
}

func echoBackend() BackendFunc {
	return func(_ context.Context, _ string, payload []byte) ([]byte, error) {
		return payload, nil
	}
}

func TestInvoke_RoutesToBackend(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, echoBackend(), OpGenerateText)

	out, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{"prompt":"hi"}`), 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"hi"}`, string(out))
}

func TestInvoke_UnknownOperationIsFatal(t *testing.T) {
	g := newTestGateway(time.Minute)

	_, err := g.Invoke(context.Background(), "summon", []byte(`{}`), 0)
	var fatal *types.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "summon", fatal.Op)
}

func TestInvoke_MalformedPayloadIsFatal(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	}), OpGenerateText)

	_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{not json`), 0)
	var fatal *types.FatalError
	assert.ErrorAs(t, err, &fatal)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInvoke_TimeoutIsTransient(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		time.Sleep(200 * time.Millisecond)
		return []byte(`{}`), nil
	}), OpGenerateText)

	start := time.Now()
	_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 20*time.Millisecond)
	var transient *types.TransientError
	require.ErrorAs(t, err, &transient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestInvoke_UnclassifiedBackendErrorIsTransient(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, errors.New("connection reset")
	}), OpGenerateText)

	_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	assert.True(t, types.IsRetryable(err))
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, &types.TransientError{Op: OpGenerateText, Err: errors.New("503")}
	}), OpGenerateText, OpGenerateJSON)

	for i := 0; i < 5; i++ {
		_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "open", g.States()[DependencyGeneration])

	// Every op of the dependency now fails fast without reaching the backend.
	for _, op := range []string{OpGenerateText, OpGenerateJSON} {
		_, err := g.Invoke(context.Background(), op, []byte(`{}`), 0)
		assert.ErrorIs(t, err, types.ErrCircuitOpen)
		assert.True(t, types.IsRetryable(err))
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreaker_HalfOpenTrialCloses(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var calls atomic.Int32
	g := newTestGateway(50 * time.Millisecond)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, errors.New("down")
		}
		return []byte(`{"text":"ok"}`), nil
	}), OpGenerateText)

	for i := 0; i < 5; i++ {
		_, _ = g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	}
	_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	require.ErrorIs(t, err, types.ErrCircuitOpen)

	time.Sleep(80 * time.Millisecond)
	fail.Store(false)

	out, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"ok"}`, string(out))
	assert.Equal(t, "closed", g.States()[DependencyGeneration])
	assert.Equal(t, int32(6), calls.Load())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(50 * time.Millisecond)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("down")
	}), OpGenerateText)

	for i := 0; i < 5; i++ {
		_, _ = g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	}
	time.Sleep(80 * time.Millisecond)

	_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())

	_, err = g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	assert.ErrorIs(t, err, types.ErrCircuitOpen)
	assert.Equal(t, int32(6), calls.Load())
}

func TestBreaker_FatalErrorsDoNotTrip(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, &types.FatalError{Op: OpGenerateText, Err: errors.New("quota exhausted")}
	}), OpGenerateText)

	for i := 0; i < 10; i++ {
		_, err := g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
		var fatal *types.FatalError
		require.ErrorAs(t, err, &fatal)
	}
	assert.Equal(t, "closed", g.States()[DependencyGeneration])
}

func TestBreaker_DependenciesAreIsolated(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, errors.New("down")
	}), OpGenerateText)
	g.Register(DependencyRendering, echoBackend(), OpRenderMedia)

	for i := 0; i < 6; i++ {
		_, _ = g.Invoke(context.Background(), OpGenerateText, []byte(`{}`), 0)
	}

	_, err := g.Invoke(context.Background(), OpRenderMedia, []byte(`{}`), 0)
	assert.NoError(t, err)
	assert.Equal(t, "closed", g.States()[DependencyRendering])
}

func TestCall_DecodesResponse(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(_ context.Context, _ string, payload []byte) ([]byte, error) {
		var req TextRequest
		if err := DecodePayload(OpGenerateText, payload, &req); err != nil {
			return nil, err
		}
		return json.Marshal(TextResponse{Text: "echo: " + req.Prompt})
	}), OpGenerateText)

	resp, err := Call[TextRequest, TextResponse](context.Background(), g, OpGenerateText, TextRequest{Prompt: "hello"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", resp.Text)
}

func TestCall_UndecodableResponseIsTransient(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, BackendFunc(func(context.Context, string, []byte) ([]byte, error) {
		return []byte(`not json`), nil
	}), OpGenerateText)

	_, err := Call[TextRequest, TextResponse](context.Background(), g, OpGenerateText, TextRequest{}, 0)
	var transient *types.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestOperations(t *testing.T) {
	g := newTestGateway(time.Minute)
	g.Register(DependencyGeneration, echoBackend(), OpGenerateText, OpEmbed)
	g.Register(DependencyRendering, echoBackend(), OpRenderMedia)

	assert.Equal(t, []string{OpEmbed, OpGenerateText, OpRenderMedia}, g.Operations())
}
