package scanrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mentionscan/internal/domain"
	"mentionscan/internal/events"
	"mentionscan/internal/logger"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
	"mentionscan/internal/workflow"
)

const MsgEnrichment = "We couldn't finish the extended brand report for this scan. Please try again later."

var errNotEnrichable = errors.New("scan not complete")

type BrandChecker interface {
	Check(ctx context.Context, runID, site string, a domain.BusinessAnalysis) ([]domain.BrandAwarenessResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, runID, site string, a domain.BusinessAnalysis, results []domain.PlatformResult) (string, error)
}

type enrichment struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Enricher runs the post-scan enrichment workflow. At most one enrichment
// runs per scan run: a newer trigger cancels the in-flight one and waits for
// it to stop before starting.
type Enricher struct {
	store      ports.Store
	brand      BrandChecker
	summarizer Summarizer
	steps      *workflow.Runner
	metrics    *metrics.Metrics
	log        logger.Logger

	mu       sync.Mutex
	inflight map[string]*enrichment
}

func NewEnricher(store ports.Store, brand BrandChecker, summarizer Summarizer, steps *workflow.Runner, m *metrics.Metrics, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.NewNop()
	}
	if steps == nil {
		steps = workflow.NewRunner(workflow.DefaultConfig(), log)
	}
	return &Enricher{
		store:      store,
		brand:      brand,
		summarizer: summarizer,
		steps:      steps,
		metrics:    m,
		log:        log,
		inflight:   map[string]*enrichment{},
	}
}

// Handle is the scan/enrich event handler.
func (e *Enricher) Handle(ctx context.Context, ev events.Event) error {
	var req ports.EnrichRequest
	if err := ev.Decode(&req); err != nil {
		return err
	}
	return e.Enrich(ctx, req.ScanRunID)
}

// Enrich runs enrichment for runID. It returns nil when it was superseded by
// a newer trigger for the same run.
func (e *Enricher) Enrich(ctx context.Context, runID string) error {
	ctx, cancel := context.WithCancel(ctx)
	me := &enrichment{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.inflight[runID]
	e.inflight[runID] = me
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.inflight[runID] == me {
			delete(e.inflight, runID)
		}
		e.mu.Unlock()
		cancel()
		close(me.done)
	}()

	log := e.log.With(logger.String("run_id", runID))
	if prev != nil {
		log.Info("cancelling in-flight enrichment")
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil
		}
	}

	err := e.run(ctx, log, runID)
	if e.superseded(runID, me) {
		log.Info("enrichment superseded")
		e.metrics.Enriched("superseded")
		return nil
	}
	if errors.Is(err, errNotEnrichable) {
		log.Warn("enrichment skipped", logger.Error(err))
		return workflow.Permanent(err)
	}
	if err != nil && ctx.Err() != nil {
		// The run stays complete; enrichment can be triggered again.
		log.Warn("enrichment interrupted", logger.Error(err))
		if serr := e.store.SetEnrichmentStatus(context.WithoutCancel(ctx), runID, domain.EnrichmentNone); serr != nil {
			log.Error("reset enrichment status", logger.Error(serr))
		}
		e.metrics.Enriched("interrupted")
		return err
	}
	if err != nil {
		log.Error("enrichment failed", logger.Error(err))
		bg := context.WithoutCancel(ctx)
		if serr := e.store.SetEnrichmentStatus(bg, runID, domain.EnrichmentFailed); serr != nil {
			log.Error("record enrichment status", logger.Error(serr))
		}
		if ferr := e.store.Fail(bg, runID, MsgEnrichment); ferr != nil {
			log.Error("record failure", logger.Error(ferr))
		}
		e.metrics.Enriched("failed")
		return workflow.Permanent(err)
	}
	e.metrics.Enriched("complete")
	return nil
}

func (e *Enricher) superseded(runID string, me *enrichment) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.inflight[runID]
	return ok && cur != me
}

func (e *Enricher) run(ctx context.Context, log logger.Logger, runID string) error {
	run, err := e.store.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.ScanComplete {
		return fmt.Errorf("run is %s: %w", run.Status, errNotEnrichable)
	}
	analysis, _, err := e.store.GetAnalysis(ctx, runID)
	if err != nil {
		return err
	}

	if err := e.steps.Step(ctx, "enrich-start", func(ctx context.Context) error {
		return e.store.SetEnrichmentStatus(ctx, runID, domain.EnrichmentProcessing)
	}); err != nil {
		return err
	}

	if err := e.steps.Step(ctx, "brand-awareness", func(ctx context.Context) error {
		results, err := e.brand.Check(ctx, runID, run.Domain, analysis)
		if err != nil {
			return err
		}
		return e.store.ReplaceBrandResults(ctx, runID, results)
	}); err != nil {
		return err
	}

	if err := e.steps.Step(ctx, "competitive-summary", func(ctx context.Context) error {
		has, err := e.store.HasCompetitorData(ctx, runID)
		if err != nil || !has {
			return err
		}
		results, err := e.store.ListResults(ctx, runID)
		if err != nil {
			return err
		}
		summary, err := e.summarizer.Summarize(ctx, runID, run.Domain, analysis, results)
		if err != nil {
			return err
		}
		return e.store.SaveCompetitiveSummary(ctx, runID, summary)
	}); err != nil {
		return err
	}

	if err := e.steps.Step(ctx, "enrich-complete", func(ctx context.Context) error {
		return e.store.SetEnrichmentStatus(ctx, runID, domain.EnrichmentComplete)
	}); err != nil {
		return err
	}
	log.Info("enrichment complete")
	return nil
}
