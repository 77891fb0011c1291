// Package workflow runs the named steps of a scan with bounded retries.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"mentionscan/internal/logger"
)

// Config bounds the retries of a single step.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Runner struct {
	cfg Config
	log logger.Logger
}

func NewRunner(cfg Config, log logger.Logger) *Runner {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig().InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{cfg: cfg, log: log}
}

// Step runs fn until it succeeds, returns a permanent error, the retry budget
// is spent or ctx is done. The returned error wraps the last failure.
func (r *Runner) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(r.cfg.InitialDelay)
	backoff = retry.WithCappedDuration(r.cfg.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(r.cfg.MaxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		r.log.Warn("workflow step failed",
			logger.String("step", name),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("step %s: %w", name, err)
	}
	return nil
}
