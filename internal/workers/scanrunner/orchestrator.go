package scanrunner

import (
	"context"
	"errors"
	"fmt"

	"mentionscan/internal/domain"
	"mentionscan/internal/flags"
	"mentionscan/internal/logger"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/analyzer"
	"mentionscan/internal/services/research"
	"mentionscan/internal/services/scanner"
	"mentionscan/internal/services/visibility"
	"mentionscan/internal/workflow"
)

// User-facing failure messages. Upstream errors are only logged.
const (
	MsgNoPages   = "We couldn't read enough of your website to run a scan. Check that the site is online and publicly accessible."
	MsgNoResults = "We couldn't reach the AI assistants right now. Please try again later."
)

var (
	ErrNoPages   = errors.New("crawl returned no pages")
	ErrNoResults = errors.New("no platform answered")
	// ErrUnsettled marks a run left non-terminal because its outcome could
	// not be stored. Its job goes back on the queue.
	ErrUnsettled = errors.New("run outcome not recorded")
)

type Crawler interface {
	CrawlSite(ctx context.Context, site string) domain.CrawlResult
}

type Researcher interface {
	Research(ctx context.Context, a domain.BusinessAnalysis, runID string, onProgress research.ProgressFunc) []domain.RawQuerySuggestion
	Select(a domain.BusinessAnalysis, suggestions []domain.RawQuerySuggestion, limit int) []domain.ResearchedQuery
}

type Executor interface {
	Run(ctx context.Context, runID, site string, a domain.BusinessAnalysis, queries []domain.ResearchedQuery, onProgress visibility.ProgressFunc) ([]domain.PlatformResult, error)
}

type FlagSource interface {
	Enabled(ctx context.Context, name string) (bool, error)
}

type Deps struct {
	Store      ports.Store
	Crawler    Crawler
	Analyzer   ports.Analyzer
	Research   Researcher
	Executor   Executor
	Bus        ports.EventBus
	Flags      FlagSource
	Steps      *workflow.Runner
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	QueryLimit int
}

// Orchestrator drives one scan run through
// pending → crawling → analyzing → generating → querying → complete.
// Every step's output is persisted, so re-processing a run resumes after
// the last finished step.
type Orchestrator struct {
	Deps
}

var _ ScanProcessor = (*Orchestrator)(nil)

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Steps == nil {
		d.Steps = workflow.NewRunner(workflow.DefaultConfig(), d.Logger)
	}
	if d.QueryLimit <= 0 {
		d.QueryLimit = research.DefaultQueryLimit
	}
	return &Orchestrator{Deps: d}
}

func (o *Orchestrator) Process(ctx context.Context, runID string) error {
	var run domain.ScanRun
	err := o.Steps.Step(ctx, "load-run", func(ctx context.Context) error {
		var err error
		run, err = o.Store.Get(ctx, runID)
		if errors.Is(err, ports.ErrNotFound) {
			return workflow.Permanent(err)
		}
		return err
	})
	switch {
	case errors.Is(err, ports.ErrNotFound), ctx.Err() != nil:
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnsettled, err)
	}
	if run.Status.Terminal() {
		return nil
	}
	log := o.Logger.With(logger.String("run_id", runID), logger.String("domain", run.Domain))

	fail := func(message string, cause error) error {
		if ctx.Err() != nil {
			log.Warn("scan interrupted", logger.Error(cause))
			return cause
		}
		log.Error("scan failed", logger.Error(cause))
		if err := o.Store.Fail(context.WithoutCancel(ctx), runID, message); err != nil {
			log.Error("record failure", logger.Error(err))
			return fmt.Errorf("%w: %w", ErrUnsettled, cause)
		}
		o.Metrics.RunFinished(string(domain.ScanFailed))
		return cause
	}

	analysis, err := o.analysis(ctx, log, run)
	switch {
	case errors.Is(err, ErrNoPages):
		return fail(MsgNoPages, err)
	case err != nil:
		return fail(scanner.GenericFailure, err)
	}

	queries, err := o.queries(ctx, log, run, analysis)
	if err != nil {
		return fail(scanner.GenericFailure, err)
	}

	results, err := o.query(ctx, run, analysis, queries)
	switch {
	case errors.Is(err, ErrNoResults):
		return fail(MsgNoResults, err)
	case err != nil:
		return fail(scanner.GenericFailure, err)
	}

	score := visibility.Score(results)
	err = o.Steps.Step(ctx, "complete", func(ctx context.Context) error {
		return o.Store.Complete(ctx, runID, score)
	})
	if err != nil {
		return fail(scanner.GenericFailure, err)
	}
	o.Metrics.RunFinished(string(domain.ScanComplete))
	log.Info("scan complete", logger.Int("score", score), logger.Int("results", len(results)))

	o.maybeEnrich(ctx, log, run)
	return nil
}

// analysis returns the persisted analysis or crawls and analyzes the site.
func (o *Orchestrator) analysis(ctx context.Context, log logger.Logger, run domain.ScanRun) (domain.BusinessAnalysis, error) {
	if a, found, err := o.Store.GetAnalysis(ctx, run.ID); err != nil {
		return domain.BusinessAnalysis{}, err
	} else if found {
		log.Info("resuming with stored analysis")
		return a, nil
	}

	if err := o.transition(ctx, run.ID, domain.ScanCrawling); err != nil {
		return domain.BusinessAnalysis{}, err
	}
	crawl := o.Crawler.CrawlSite(ctx, run.Domain)
	o.Metrics.Crawled(len(crawl.Pages))
	log.Info("crawl finished", logger.Int("pages", len(crawl.Pages)))

	if err := o.transition(ctx, run.ID, domain.ScanAnalyzing); err != nil {
		return domain.BusinessAnalysis{}, err
	}
	if len(crawl.Pages) == 0 {
		return domain.BusinessAnalysis{}, ErrNoPages
	}

	var a domain.BusinessAnalysis
	err := o.Steps.Step(ctx, "analyze", func(ctx context.Context) error {
		var err error
		a, err = o.Analyzer.Analyze(ctx, analyzer.CombinedText(crawl), analyzer.TLDCountry(run.Domain))
		return err
	})
	if err != nil {
		return domain.BusinessAnalysis{}, err
	}
	if err := o.Store.SaveAnalysis(ctx, run.ID, a); err != nil {
		return domain.BusinessAnalysis{}, fmt.Errorf("save analysis: %w", err)
	}
	return a, nil
}

// queries returns the persisted prompt set or researches a new one.
func (o *Orchestrator) queries(ctx context.Context, log logger.Logger, run domain.ScanRun, a domain.BusinessAnalysis) ([]domain.ResearchedQuery, error) {
	existing, err := o.Store.ListQueries(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if err := o.transition(ctx, run.ID, domain.ScanGenerating); err != nil {
		return nil, err
	}
	raw := o.Research.Research(ctx, a, run.ID, func(p domain.Platform, done, total int) {
		log.Debug("query research progress", logger.String("platform", string(p)), logger.Int("done", done), logger.Int("total", total))
	})
	selected := o.Research.Select(a, raw, o.QueryLimit)
	if len(raw) == 0 {
		log.Warn("no platform suggested queries, using fallback set", logger.Int("queries", len(selected)))
	}

	err = o.Steps.Step(ctx, "save-queries", func(ctx context.Context) error {
		return o.Store.ReplaceQueries(ctx, run.ID, selected)
	})
	return selected, err
}

func (o *Orchestrator) query(ctx context.Context, run domain.ScanRun, a domain.BusinessAnalysis, queries []domain.ResearchedQuery) ([]domain.PlatformResult, error) {
	if err := o.transition(ctx, run.ID, domain.ScanQuerying); err != nil {
		return nil, err
	}

	var results []domain.PlatformResult
	err := o.Steps.Step(ctx, "query-platforms", func(ctx context.Context) error {
		var err error
		results, err = o.Executor.Run(ctx, run.ID, run.Domain, a, queries, func(done, total int) {
			if err := o.Store.UpdateQueryProgress(ctx, run.ID, done, total); err != nil {
				o.Logger.Warn("update query progress", logger.String("run_id", run.ID), logger.Error(err))
			}
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return ErrNoResults
		}
		return o.Store.ReplaceResults(ctx, run.ID, results)
	})
	return results, err
}

func (o *Orchestrator) transition(ctx context.Context, runID string, status domain.ScanStatus) error {
	return o.Store.UpdateStatus(ctx, runID, status, scanner.StatusPercent(status))
}

// maybeEnrich sends the enrichment event for premium subscriptions while the
// premium enrichment flag is on. Failures here never fail the scan.
func (o *Orchestrator) maybeEnrich(ctx context.Context, log logger.Logger, run domain.ScanRun) {
	if run.DomainSubscriptionID == nil || o.Bus == nil {
		return
	}
	sub, err := o.Store.GetSubscription(ctx, *run.DomainSubscriptionID)
	if err != nil {
		log.Warn("load subscription for enrichment", logger.Error(err))
		return
	}
	if sub.Tier != domain.TierPremium {
		return
	}
	if o.Flags != nil {
		on, err := o.Flags.Enabled(ctx, flags.PremiumEnrichment)
		if err != nil {
			log.Warn("load feature flags", logger.Error(err))
		}
		if !on {
			return
		}
	}
	if err := o.Bus.Send(ctx, ports.EventScanEnrich, ports.EnrichRequest{ScanRunID: run.ID}); err != nil {
		log.Error("send enrichment event", logger.Error(err))
	}
}
