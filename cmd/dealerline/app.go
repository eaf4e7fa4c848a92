package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/szaher/dealerline/internal/actions"
	"github.com/szaher/dealerline/internal/agent"
	"github.com/szaher/dealerline/internal/callcenter"
	"github.com/szaher/dealerline/internal/config"
	"github.com/szaher/dealerline/internal/conversation"
	"github.com/szaher/dealerline/internal/crm"
	"github.com/szaher/dealerline/internal/escalation"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/finalizer"
	"github.com/szaher/dealerline/internal/heuristics"
	"github.com/szaher/dealerline/internal/llm"
	"github.com/szaher/dealerline/internal/secrets"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/storage"
	"github.com/szaher/dealerline/internal/telemetry"
)

// app is the wired call center.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	crm         *crm.Store
	transcripts storage.TranscriptStore
	callLog     storage.CallLog
	estimator   *heuristics.Estimator
	hub         *events.Hub
	center      *callcenter.Center

	closers []func()
}

// loadConfig reads the config named by --config, falling back to
// ./dealerline.yaml when it exists.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the JSON logger behind a redacting handler.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := telemetry.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	filter := secrets.NewRedactFilter(telemetry.NewHandler(w, level))
	for _, s := range cfg.Secrets() {
		filter.AddSecret(s)
	}
	filter.SetMaskPhones(cfg.Log.MaskPhones)
	return slog.New(filter), nil
}

// openCRM opens the CRM database and seeds it when configured.
func openCRM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*crm.Store, error) {
	if cfg.CRM.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.CRM.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating crm directory: %w", err)
		}
	}
	store, err := crm.Open(cfg.CRM.Driver, cfg.CRM.DSN, crm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if cfg.CRM.Seed {
		n, err := store.Seed(ctx)
		if err != nil {
			store.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("crm seeded", "records", n)
		}
	}
	return store, nil
}

// openStorage opens the configured transcript and call-log backends.
func openStorage(ctx context.Context, cfg *config.Config) (storage.TranscriptStore, storage.CallLog, func(), error) {
	var transcripts storage.TranscriptStore
	switch t := cfg.Storage.Transcripts; t.Backend {
	case "s3":
		s3t, err := storage.NewS3Transcripts(ctx, t.Bucket, t.Prefix, t.Region)
		if err != nil {
			return nil, nil, nil, err
		}
		transcripts = s3t
	default:
		local, err := storage.NewLocalTranscripts(t.Dir)
		if err != nil {
			return nil, nil, nil, err
		}
		transcripts = local
	}

	closeFn := func() {}
	var callLog storage.CallLog
	switch l := cfg.Storage.CallLog; l.Backend {
	case "postgres":
		pg, err := storage.NewPostgresCallLog(ctx, l.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		callLog = pg
		closeFn = pg.Close
	default:
		jsonl, err := storage.NewJSONLCallLog(l.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		callLog = jsonl
	}
	return transcripts, callLog, closeFn, nil
}

// newApp wires every component from cfg. Call events go to the in-process
// hub, to Redis when configured and to any extra emitters.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...events.Emitter) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: telemetry.NewMetrics(),
		hub:     events.NewHub(),
	}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error
	a.crm, err = openCRM(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.crm.Close() })

	var closeStorage func()
	a.transcripts, a.callLog, closeStorage, err = openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStorage)

	var lex *heuristics.Lexicon
	if p := cfg.Heuristics.LexiconPath; p != "" {
		lex, err = heuristics.LoadLexicon(p)
		if err != nil {
			return nil, err
		}
	}
	a.estimator = heuristics.NewEstimator(lex, logger)

	policy, err := escalation.NewPolicy(cfg.Escalation.Rules)
	if err != nil {
		return nil, err
	}

	client, model := llm.NewClientForModel(cfg.LLM.Model, llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})

	registry, err := actions.NewDealershipRegistry(a.crm, nil, actions.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sessions := session.NewRegistry(
		finalizer.New(a.transcripts, a.callLog, logger),
		session.WithLogger(logger),
	)
	convs := conversation.New(agent.DefaultPriming())
	orch := agent.New(client, registry, convs, sessions, a.estimator, agent.Config{
		Model:         model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		PhaseTimeout:  cfg.LLM.PhaseTimeout,
		PhaseRetries:  cfg.LLM.PhaseRetries,
		FallbackReply: cfg.Dealership.FallbackReply,
		HandoffReply:  cfg.Dealership.HandoffMessage,
	},
		agent.WithLogger(logger),
		agent.WithMetrics(a.metrics),
		agent.WithPolicy(policy),
	)

	emitters := append(events.Multi{a.hub}, extra...)
	if r := cfg.Events.Redis; r.Addr != "" {
		rdb, err := events.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		opts := []events.RedisOption{events.WithLogger(logger)}
		if r.Channel != "" {
			opts = append(opts, events.WithChannel(r.Channel))
		}
		if r.TTL > 0 {
			opts = append(opts, events.WithTTL(r.TTL))
		}
		pub := events.NewRedisPublisher(rdb, opts...)
		a.closers = append(a.closers, func() { pub.Close() })
		emitters = append(emitters, pub)
	}

	centerOpts := []callcenter.Option{
		callcenter.WithEmitter(emitters),
		callcenter.WithMetrics(a.metrics),
		callcenter.WithHistory(a.callLog, a.transcripts),
		callcenter.WithLogger(logger),
	}
	if len(cfg.Dealership.Greetings) > 0 {
		centerOpts = append(centerOpts, callcenter.WithGreetings(cfg.Dealership.Greetings))
	}
	a.center = callcenter.New(sessions, convs, orch, centerOpts...)

	logger.Info("call center ready",
		"model", cfg.LLM.Model,
		"actions", len(registry.Describe()),
		"escalation_rules", policy.Len(),
		"transcripts", cfg.Storage.Transcripts.Backend,
		"call_log", cfg.Storage.CallLog.Backend,
	)
	ready = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// endActive ends every live call, so that shutdown still leaves a record of
// each one.
func (a *app) endActive(ctx context.Context, outcome string) {
	for _, s := range a.center.ListActiveSessions() {
		if _, err := a.center.EndSession(ctx, s.ID, outcome); err != nil {
			a.logger.Error("ending call on shutdown failed", "call_id", s.ID, "error", err)
		}
	}
}
