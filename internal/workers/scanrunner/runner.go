package scanrunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
)

// ScanProcessor performs the scan work for a job's run id.
type ScanProcessor interface {
	Process(ctx context.Context, runID string) error
}

// Run starts worker goroutines that claim jobs and process them. It returns
// immediately; workers stop when ctx is done. The returned func blocks until
// every worker has recorded its last job.
func Run(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, concurrency int, pollInterval time.Duration, log logger.Logger) (wait func()) {
	var wg sync.WaitGroup
	if concurrency < 1 {
		return wg.Wait
	}
	if log == nil {
		log = logger.NewNop()
	}
	jobsCh := make(chan ports.ScanJob, concurrency)

	// claim loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		defer close(jobsCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						if ctx.Err() == nil {
							log.Error("job claim error", logger.Error(err))
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			wlog := log.With(logger.Int("worker", idx))
			for job := range jobsCh {
				if err := processor.Process(ctx, job.ScanRunID); err != nil {
					finish(ctx, repo, wlog, job.ID, job.ScanRunID, err)
					continue
				}
				if err := repo.MarkCompleted(ctx, job.ID); err != nil {
					wlog.Error("complete job", logger.String("job_id", job.ID), logger.Error(err))
				}
			}
		}(i)
	}
	return wg.Wait
}

// ProcessInline starts and processes a specific run synchronously using the
// same processor as the background workers. A run cut short by ctx is handed
// back to the queue.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, runID string) error {
	jobID, err := repo.StartJobForScan(ctx, runID)
	if err != nil {
		return err
	}
	if err := processor.Process(ctx, runID); err != nil {
		finish(ctx, repo, logger.NewNop(), jobID, runID, err)
		return err
	}
	return repo.MarkCompleted(ctx, jobID)
}

// finish records a job whose processing returned err. Interrupted jobs and
// jobs whose run was left unsettled are requeued; everything else is marked
// failed.
func finish(ctx context.Context, repo ports.JobRepository, log logger.Logger, jobID, runID string, err error) {
	bg := context.WithoutCancel(ctx)
	if ctx.Err() != nil || errors.Is(err, ErrUnsettled) {
		if rerr := repo.Requeue(bg, jobID); rerr != nil {
			log.Error("requeue job", logger.String("job_id", jobID), logger.Error(rerr))
		}
		log.Info("job requeued", logger.String("job_id", jobID), logger.String("run_id", runID), logger.Error(err))
		return
	}
	_ = repo.MarkFailed(bg, jobID, err.Error())
	log.Error("job failed", logger.String("job_id", jobID), logger.String("run_id", runID), logger.Error(err))
}
