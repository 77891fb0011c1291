package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
)

var ErrPlatformUnavailable = errors.New("platform not configured")

// Router sends each completion to the provider registered for its platform.
type Router struct {
	providers map[domain.Platform]Provider
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       logger.Logger
}

var _ ports.LLMClient = (*Router)(nil)

func NewRouter(timeout time.Duration, m *metrics.Metrics, log logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{providers: map[domain.Platform]Provider{}, timeout: timeout, metrics: m, log: log}
}

// Register adds or replaces the provider for platform.
func (r *Router) Register(platform domain.Platform, p Provider) *Router {
	r.providers[platform] = p
	return r
}

// Platforms lists the configured platforms among candidates, keeping their order.
func (r *Router) Platforms(candidates ...domain.Platform) []domain.Platform {
	var out []domain.Platform
	for _, p := range candidates {
		if _, ok := r.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Router) Complete(ctx context.Context, platform domain.Platform, prompt string) (ports.Completion, error) {
	p, ok := r.providers[platform]
	if !ok {
		return ports.Completion{}, fmt.Errorf("%s: %w", platform, ErrPlatformUnavailable)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	c, err := p.Complete(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.log.Debug("llm call failed",
			logger.String("platform", string(platform)),
			logger.Duration("took", time.Since(start)),
			logger.Error(err),
		)
		err = fmt.Errorf("%s: %w", platform, err)
	}
	r.metrics.LLMCall(string(platform), outcome, time.Since(start))
	return c, err
}
