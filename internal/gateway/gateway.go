// Package gateway provides the uniform boundary for external operations: routing
// by operation name, per-call timeouts, error classification and a circuit
// breaker per external dependency.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/jonathan/ideaforge/internal/types"
)

// Backend performs operations for one external dependency
type Backend interface {
	Call(ctx context.Context, op string, payload []byte) ([]byte, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, op string, payload []byte) ([]byte, error)

// Call implements Backend.
func (f BackendFunc) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	return f(ctx, op, payload)
}

// BreakerSettings configures the circuit breaker of every dependency
type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold uint32
	// Window is how often failure counts are cleared while closed
	Window time.Duration
	// Cooldown is how long the breaker fails fast before a trial call
	Cooldown time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failures and cools down for 60s
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Threshold: 5,
		Window:    2 * time.Minute,
		Cooldown:  60 * time.Second,
	}
}

type route struct {
	dependency string
	backend    Backend
}

// Gateway routes operations to backends behind per-dependency breakers
type Gateway struct {
	mu             sync.RWMutex
	routes         map[string]route
	breakers       map[string]*gobreaker.CircuitBreaker[[]byte]
	settings       BreakerSettings
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// New creates an empty gateway. Register backends before use.
func New(settings BreakerSettings, defaultTimeout time.Duration, logger zerolog.Logger) *Gateway {
	def := DefaultBreakerSettings()
	if settings.Threshold == 0 {
		settings.Threshold = def.Threshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = def.Cooldown
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}
	return &Gateway{
		routes:         make(map[string]route),
		breakers:       make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		settings:       settings,
		defaultTimeout: defaultTimeout,
		logger:         logger.With().Str("component", "gateway").Logger(),
	}
}

// Register routes ops to backend. All ops registered under one dependency share a breaker.
func (g *Gateway) Register(dependency string, backend Backend, ops ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.breakers[dependency]; !ok {
		g.breakers[dependency] = g.newBreaker(dependency)
	}
	for _, op := range ops {
		g.routes[op] = route{dependency: dependency, backend: backend}
	}
}

func (g *Gateway) newBreaker(dependency string) *gobreaker.CircuitBreaker[[]byte] {
	threshold := g.settings.Threshold
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        dependency,
		MaxRequests: 1,
		Interval:    g.settings.Window,
		Timeout:     g.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// countsAsSuccess keeps errors that say nothing about the dependency's health
// out of the breaker's failure count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var fatal *types.FatalError
	if errors.As(err, &fatal) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Invoke runs op with payload, bounded by timeout. Unknown operations and
// malformed payloads are fatal; timeouts, backend failures and an open breaker
// are transient.
func (g *Gateway) Invoke(ctx context.Context, op string, payload []byte, timeout time.Duration) ([]byte, error) {
	g.mu.RLock()
	r, ok := g.routes[op]
	var cb *gobreaker.CircuitBreaker[[]byte]
	if ok {
		cb = g.breakers[r.dependency]
	}
	g.mu.RUnlock()

	if !ok {
		return nil, &types.FatalError{Op: op, Err: fmt.Errorf("unknown operation %q", op)}
	}
	if !json.Valid(payload) {
		return nil, &types.FatalError{Op: op, Err: errors.New("payload is not valid JSON")}
	}
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	out, err := cb.Execute(func() ([]byte, error) {
		return g.call(ctx, r.backend, op, payload, timeout)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &types.TransientError{Op: op, Err: fmt.Errorf("%s: %w", r.dependency, types.ErrCircuitOpen)}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type callResult struct {
	out []byte
	err error
}

// call runs the backend on its own goroutine so a backend that ignores its
// context still cannot hold the caller past the deadline. A late result is dropped.
func (g *Gateway) call(ctx context.Context, backend Backend, op string, payload []byte, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		out, err := backend.Call(callCtx, op, payload)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classify(op, res.err)
		}
		return res.out, nil
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &types.TransientError{Op: op, Err: fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)}
	}
}

// classify maps a backend error onto the error taxonomy. Errors a backend has
// already classified pass through; anything else is assumed to be transient.
func classify(op string, err error) error {
	var transient *types.TransientError
	var fatal *types.FatalError
	if errors.As(err, &transient) || errors.As(err, &fatal) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &types.TransientError{Op: op, Err: err}
}

// States reports the breaker state of every registered dependency.
func (g *Gateway) States() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]string, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// Operations lists the registered operation names in sorted order.
func (g *Gateway) Operations() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ops := make([]string, 0, len(g.routes))
	for op := range g.routes {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
