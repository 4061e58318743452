package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/retry"
	"github.com/jonathan/ideaforge/internal/tracker"
	"github.com/jonathan/ideaforge/internal/types"
)

// fastPolicy keeps the real attempt count with millisecond waits
var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

type execFunc func(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error)

// funcStep is a step assembled from functions. It counts its executions.
type funcStep struct {
	name     string
	exec     execFunc
	validate func(*pipeline.StepResult) error
	calls    atomic.Int32
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	s.calls.Add(1)
	return s.exec(ctx, env, state)
}

func (s *funcStep) Validate(res *pipeline.StepResult) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(res)
}

var testKinds = []types.ArtifactKind{
	types.ArtifactBrief, types.ArtifactAnalysis, types.ArtifactDocument, types.ArtifactWireframe,
}

// producing returns a step that appends its name to Goals and stores one artifact
func producing(name string, kind types.ArtifactKind) *funcStep {
	return &funcStep{name: name, exec: func(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
		next := state.Clone()
		next.Goals = append(next.Goals, name)
		a, err := env.PutArtifact(ctx, kind, []byte(name+" output"), "text/plain")
		if err != nil {
			return nil, err
		}
		return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{a}}, nil
	}}
}

func failing(name string, err error) *funcStep {
	return &funcStep{name: name, exec: func(context.Context, *pipeline.Env, types.RunState) (*pipeline.StepResult, error) {
		return nil, err
	}}
}

func testDefinition(steps ...pipeline.Step) *pipeline.Definition {
	def := &pipeline.Definition{Name: "test"}
	for _, s := range steps {
		def.Steps = append(def.Steps, pipeline.Descriptor{Step: s, Timeout: time.Second})
	}
	return def
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []types.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note types.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) Sent() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.sent...)
}

// flakyTracker loses the connection on the first checkpoint of one step index
type flakyTracker struct {
	tracker.Tracker
	failAt int
	failed atomic.Bool
}

func (f *flakyTracker) Checkpoint(ctx context.Context, runID uuid.UUID, cp tracker.Checkpoint) error {
	if cp.StepIndex == f.failAt && f.failed.CompareAndSwap(false, true) {
		return errors.New("connection lost")
	}
	return f.Tracker.Checkpoint(ctx, runID, cp)
}

type fixture struct {
	engine   *pipeline.Engine
	tracker  tracker.Tracker
	store    *artifacts.MemoryStore
	notifier *recordingNotifier
	def      *pipeline.Definition
}

type fixtureOption func(*pipeline.EngineConfig)

func newFixture(def *pipeline.Definition, opts ...fixtureOption) *fixture {
	f := &fixture{
		tracker:  tracker.NewMemory(),
		store:    artifacts.NewMemoryStore(),
		notifier: &recordingNotifier{},
		def:      def,
	}
	catalog, err := pipeline.NewCatalog(def)
	if err != nil {
		panic(err)
	}
	cfg := pipeline.EngineConfig{
		Tracker:   f.tracker,
		Pipelines: catalog,
		Store:     f.store,
		Notifier:  f.notifier,
		Retry:     fastPolicy,
		Logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.tracker = cfg.Tracker
	f.engine = pipeline.NewEngine(cfg)
	return f
}

// submit creates a queued run of the fixture's pipeline
func (f *fixture) submit(projectID string) *types.Run {
	run := f.def.NewRun(projectID)
	state := types.InitialState(types.SubmitRequest{
		ProjectID: projectID,
		Sector:    "healthtech",
		Idea:      "A scheduling and intake assistant for small clinics that replaces spreadsheets.",
	})
	if err := f.tracker.CreateRun(context.Background(), run, state); err != nil {
		panic(err)
	}
	return run
}
