package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/retry"
	"github.com/jonathan/ideaforge/internal/types"
)

// Outcome is a successful step execution
type Outcome struct {
	Result   *StepResult
	Attempts int
	Duration time.Duration
}

// RetryHook is told about each retry before the executor sleeps
type RetryHook func(step string, attempt int, err error, wait time.Duration)

// Executor runs one step with the retry policy and a per-attempt timeout.
type Executor struct {
	policy  retry.Policy
	logger  zerolog.Logger
	onRetry RetryHook
}

// NewExecutor creates an executor for the policy
func NewExecutor(policy retry.Policy, logger zerolog.Logger, onRetry RetryHook) *Executor {
	return &Executor{policy: policy.Normalize(), logger: logger, onRetry: onRetry}
}

// Run executes the step. The error, if any, is one of:
//   - *types.ReviewRequired, passed through untouched
//   - *types.FatalError, not retried
//   - *types.ValidationError, after every attempt failed validation
//   - *types.ExhaustedError, after every attempt failed transiently
//   - the context's error when ctx ended
func (x *Executor) Run(ctx context.Context, d Descriptor, env *Env, state types.RunState) (Outcome, error) {
	name := d.Step.Name()
	start := time.Now()
	var result *StepResult

	attempts, err := retry.Do(ctx, x.policy, func(ctx context.Context, attempt int) error {
		attemptEnv := *env
		attemptEnv.Attempt = attempt
		attemptEnv.Logger = env.Logger.With().Int("attempt", attempt).Logger()
		res, err := x.attempt(ctx, d, &attemptEnv, state)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		x.logger.Warn().Err(err).Str("step", name).Int("attempt", attempt).
			Dur("wait", wait).Msg("step attempt failed, retrying")
		if x.onRetry != nil {
			x.onRetry(name, attempt, err, wait)
		}
	})

	out := Outcome{Result: result, Attempts: attempts, Duration: time.Since(start)}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}

	var review *types.ReviewRequired
	var fatal *types.FatalError
	var validation *types.ValidationError
	switch {
	case errors.As(err, &review), errors.As(err, &fatal):
		return out, err
	case errors.As(err, &validation):
		return out, validation
	case !types.IsRetryable(err):
		// unclassified errors are not retried
		return out, &types.FatalError{Op: name, Err: err}
	default:
		return out, &types.ExhaustedError{Step: name, Attempts: attempts, Err: err}
	}
}

type attemptResult struct {
	res *StepResult
	err error
}

// attempt runs one try in its own goroutine so a step that ignores its context
// still cannot hold the run past the attempt timeout.
func (x *Executor) attempt(ctx context.Context, d Descriptor, env *Env, state types.RunState) (*StepResult, error) {
	name := d.Step.Name()
	timeout := d.timeout()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				x.logger.Error().Str("step", name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("step panicked")
				done <- attemptResult{err: &types.FatalError{Op: name, Err: fmt.Errorf("step panicked: %v", r)}}
			}
		}()
		res, err := d.Step.Execute(attemptCtx, env, state.Clone())
		if err == nil {
			if res == nil {
				err = &types.FatalError{Op: name, Err: errors.New("step returned no result")}
			} else if verr := d.Step.Validate(res); verr != nil {
				err = asValidationError(name, verr)
			}
		}
		done <- attemptResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		var fatal *types.FatalError
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) && !errors.As(r.err, &fatal) {
			return nil, &types.TransientError{Op: name, Err: fmt.Errorf("attempt timed out after %s: %w", timeout, r.err)}
		}
		return r.res, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.TransientError{Op: name, Err: fmt.Errorf("attempt timed out after %s: %w", timeout, context.DeadlineExceeded)}
	}
}

func asValidationError(step string, err error) error {
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	return &types.ValidationError{Step: step, Reason: err.Error()}
}
