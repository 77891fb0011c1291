package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpadapter "mentionscan/internal/adapters/http"
	"mentionscan/internal/adapters/llm"
	"mentionscan/internal/adapters/memory"
	pg "mentionscan/internal/adapters/postgres"
	"mentionscan/internal/config"
	"mentionscan/internal/domain"
	"mentionscan/internal/events"
	"mentionscan/internal/flags"
	"mentionscan/internal/logger"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
	"mentionscan/internal/ratelimit"
	"mentionscan/internal/services/analyzer"
	"mentionscan/internal/services/brand"
	"mentionscan/internal/services/crawler"
	"mentionscan/internal/services/research"
	"mentionscan/internal/services/scanner"
	"mentionscan/internal/services/visibility"
	"mentionscan/internal/workers/scanrunner"
	"mentionscan/internal/workflow"
)

const llmTimeout = 90 * time.Second

// app holds everything a command needs, built once from config.
type app struct {
	cfg     config.Config
	log     logger.Logger
	store   ports.Store
	metrics *metrics.Metrics
	bus     *events.Bus
	crawler *crawler.Crawler
	scanner *scanner.Service
	orch    *scanrunner.Orchestrator
	closers []func()
}

func loadConfig() (config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil && !errors.Is(err, config.ErrNoDatabaseURL) {
		return cfg, nil, err
	}
	log, lerr := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Env == "development"})
	if lerr != nil {
		return cfg, nil, lerr
	}
	return cfg, log, nil
}

func openStore(ctx context.Context, cfg config.Config, log logger.Logger) (ports.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), func() {}, nil
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, db.Close, nil
}

func newRouter(cfg config.Config, m *metrics.Metrics, log logger.Logger) *llm.Router {
	client := &http.Client{Timeout: llmTimeout}
	r := llm.NewRouter(llmTimeout, m, log)
	if cfg.OpenAIKey != "" {
		r.Register(domain.PlatformChatGPT, llm.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, client))
	}
	if cfg.AnthropicKey != "" {
		r.Register(domain.PlatformClaude, llm.NewAnthropic(cfg.AnthropicKey, cfg.AnthropicModel, "", client))
	}
	if cfg.GeminiKey != "" {
		r.Register(domain.PlatformGemini, llm.NewGemini("", cfg.GeminiKey, cfg.GeminiModel, client))
	}
	if cfg.PerplexityKey != "" {
		r.Register(domain.PlatformPerplexity, llm.NewPerplexity(cfg.PerplexityKey, cfg.PerplexityModel, client))
	}
	return r
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	router := newRouter(cfg, m, log)
	platforms := router.Platforms(domain.ResearchPlatforms...)
	if len(platforms) == 0 {
		log.Warn("no LLM provider keys configured; scans will fail at analysis")
	}
	analysisPlatform := domain.PlatformClaude
	if len(platforms) > 0 && len(router.Platforms(analysisPlatform)) == 0 {
		analysisPlatform = platforms[0]
	}
	policy := ratelimit.Policy{MaxConcurrency: cfg.ResearchMaxConcurrency, Delay: cfg.ResearchDelay}

	steps := workflow.NewRunner(workflow.Config{
		MaxRetries:   uint64(max(cfg.StepMaxRetries, 0)),
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}, log)
	bus := events.New(steps, log)

	cr := crawler.New(crawler.Options{FetchDelay: cfg.CrawlDelay, Logger: log.With(logger.String("component", "crawler"))})
	scan := scanner.New(store, store, store, bus, log.With(logger.String("component", "scanner")))
	orch := scanrunner.NewOrchestrator(scanrunner.Deps{
		Store:    store,
		Crawler:  cr,
		Analyzer: analyzer.New(router, analysisPlatform),
		Research: research.New(router, store, research.Options{Platforms: platforms, Policy: policy, Logger: log}),
		Executor: visibility.New(router, store, visibility.Options{Platforms: platforms, Policy: policy, Logger: log}),
		Bus:      bus,
		Flags:    flags.NewCache(store, clockwork.NewRealClock(), cfg.FlagCacheTTL),
		Steps:    steps,
		Metrics:  m,
		Logger:   log.With(logger.String("component", "orchestrator")),
	})
	enricher := scanrunner.NewEnricher(store,
		brand.New(router, store, brand.Options{Platforms: platforms, Policy: policy, Logger: log}),
		brand.NewSummarizer(router, store, analysisPlatform, log),
		steps, m, log.With(logger.String("component", "enricher")))

	bus.Subscribe(ports.EventScanRequested, scan.HandleScanRequested)
	bus.Subscribe(ports.EventScanEnrich, enricher.Handle)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		metrics: m,
		bus:     bus,
		crawler: cr,
		scanner: scan,
		orch:    orch,
		closers: []func(){closeStore},
	}, nil
}

// health returns the store as a pinger when it supports pinging.
func (a *app) health() httpadapter.Pinger {
	if p, ok := a.store.(httpadapter.Pinger); ok {
		return p
	}
	return nil
}

// Close cancels in-flight event handlers and releases the store.
func (a *app) Close() {
	a.bus.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}
