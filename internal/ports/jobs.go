package ports

import (
	"context"
	"time"
)

// JobLease is how long a job may stay running before another worker may
// claim it again.
const JobLease = 15 * time.Minute

type ScanJob struct {
	ID        string
	ScanRunID string
}

// JobRepository supports claiming and finishing scan jobs. Run status itself
// is owned by the orchestrator through ScanRunRepository.
type JobRepository interface {
	// ClaimNext takes the oldest queued job, or a running one whose lease
	// expired, and marks it running.
	ClaimNext(ctx context.Context) (job ScanJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	// Requeue returns a running job to the queue so its run resumes later.
	Requeue(ctx context.Context, jobID string) error
	StartJobForScan(ctx context.Context, scanRunID string) (jobID string, err error)
}
