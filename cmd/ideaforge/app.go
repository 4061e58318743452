package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/config"
	"github.com/jonathan/ideaforge/internal/db"
	"github.com/jonathan/ideaforge/internal/dispatch"
	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/llm"
	"github.com/jonathan/ideaforge/internal/lock"
	"github.com/jonathan/ideaforge/internal/notify"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/pipeline/steps"
	"github.com/jonathan/ideaforge/internal/render"
	"github.com/jonathan/ideaforge/internal/retry"
	"github.com/jonathan/ideaforge/internal/tracker"
)

// app is the wired set of collaborators behind every command
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	gateway    *gateway.Gateway
	store      artifacts.Store
	tracker    tracker.Tracker
	engine     *pipeline.Engine
	dispatcher *dispatch.Dispatcher

	closers []func()
}

// newApp connects to every configured backend. Anything left unconfigured
// falls back to its in-memory or offline implementation.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	wired := false
	defer func() {
		if !wired {
			a.Close()
		}
	}()

	if err := a.wireGateway(ctx); err != nil {
		return nil, err
	}
	if err := a.wireStore(ctx); err != nil {
		return nil, err
	}
	if err := a.wireTracker(ctx); err != nil {
		return nil, err
	}
	locker, err := a.newLocker()
	if err != nil {
		return nil, err
	}

	timeouts := map[string]time.Duration{}
	if cfg.Pipeline.MediaTimeout > 0 {
		timeouts[steps.StepGenerateMedia] = cfg.Pipeline.MediaTimeout
	}
	def, err := steps.Builtin(steps.BuiltinOptions{Timeouts: timeouts, Review: cfg.Pipeline.Review})
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	catalog, err := pipeline.NewCatalog(def)
	if err != nil {
		return nil, err
	}

	a.engine = pipeline.NewEngine(pipeline.EngineConfig{
		Tracker:   a.tracker,
		Pipelines: catalog,
		Invoker:   a.gateway,
		Store:     a.store,
		Notifier:  a.newNotifier(),
		Retry: retry.Policy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			BaseDelay:   cfg.Pipeline.BaseDelay,
			MaxDelay:    cfg.Pipeline.MaxDelay,
		},
		RunTimeout: cfg.Pipeline.RunTimeout,
		Logger:     logger.With().Str("component", "engine").Logger(),
	})

	refresh := cfg.Redis.LockTTL / 3
	a.dispatcher = dispatch.New(dispatch.Config{
		Engine:          a.engine,
		Tracker:         a.tracker,
		Locker:          locker,
		Workers:         cfg.Pipeline.Workers,
		RefreshInterval: refresh,
		Logger:          logger,
	})
	a.closers = append(a.closers, a.dispatcher.Close)

	wired = true
	return a, nil
}

func (a *app) wireGateway(ctx context.Context) error {
	settings := gateway.DefaultBreakerSettings()
	if a.cfg.LLM.BreakerThreshold > 0 {
		settings.Threshold = a.cfg.LLM.BreakerThreshold
	}
	if a.cfg.LLM.BreakerCooldown > 0 {
		settings.Cooldown = a.cfg.LLM.BreakerCooldown
	}
	a.gateway = gateway.New(settings, a.cfg.LLM.CallTimeout, a.logger)

	if a.cfg.Offline() {
		scripted := llm.NewScriptedBackend()
		a.gateway.Register(gateway.DependencyGeneration, scripted, scripted.Operations()...)
		a.logger.Warn().Msg("no API key configured; using offline scripted generation")
	} else {
		client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), a.cfg.LLM.APIKey)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		backend := llm.NewBackend(client)
		a.gateway.Register(gateway.DependencyGeneration, backend, backend.Operations()...)
	}

	var media gateway.Backend
	switch {
	case a.cfg.Render.ServiceURL != "":
		media = render.NewServiceBackend(a.cfg.Render.ServiceURL, a.cfg.Render.ServiceAPIKey, a.cfg.Render.Timeout)
	case a.cfg.Render.Browser:
		media = render.NewBrowserBackend()
	default:
		media = render.StoryboardBackend{}
	}
	a.gateway.Register(gateway.DependencyRendering, media, gateway.OpRenderMedia)
	return nil
}

func (a *app) wireStore(ctx context.Context) error {
	if a.cfg.Storage.Endpoint == "" {
		a.store = artifacts.NewMemoryStore()
		return nil
	}
	s3, err := artifacts.NewS3Store(artifacts.S3Config{
		Endpoint:  a.cfg.Storage.Endpoint,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		Bucket:    a.cfg.Storage.Bucket,
		Region:    a.cfg.Storage.Region,
		UseSSL:    a.cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return err
	}
	a.store = s3
	return nil
}

func (a *app) wireTracker(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.tracker = tracker.NewMemory()
		return nil
	}
	database, err := db.Connect(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, database.Close)
	a.tracker = database
	return nil
}

func (a *app) newLocker() (lock.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		return lock.NewMemoryLocker(), nil
	}
	locker, err := lock.NewRedisLocker(lock.RedisConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		TTL:      a.cfg.Redis.LockTTL,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = locker.Close() })
	return locker, nil
}

func (a *app) newNotifier() pipeline.Notifier {
	if a.cfg.Notify.WebhookURL == "" {
		return notify.Noop{Logger: a.logger}
	}
	return notify.NewWebhook(notify.WebhookConfig{
		URL:     a.cfg.Notify.WebhookURL,
		Secret:  a.cfg.Notify.Secret,
		Timeout: a.cfg.Notify.Timeout,
	}, a.logger)
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
