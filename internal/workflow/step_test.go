package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/workflow"
)

func fastRunner(retries uint64) *workflow.Runner {
	return workflow.NewRunner(workflow.Config{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)
}

func TestStep_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := fastRunner(2).Step(context.Background(), "crawl", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStep_BoundedRetries(t *testing.T) {
	boom := errors.New("upstream 503")
	calls := 0
	err := fastRunner(2).Step(context.Background(), "query", func(context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step query")
	assert.Equal(t, 3, calls)
}

func TestStep_PermanentErrorsAreNotRetried(t *testing.T) {
	fatal := errors.New("no pages")
	calls := 0
	err := fastRunner(5).Step(context.Background(), "analyze", func(context.Context) error {
		calls++
		return workflow.Permanent(fatal)
	})

	assert.ErrorIs(t, err, fatal)
	assert.True(t, workflow.IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestStep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastRunner(5).Step(ctx, "enrich", func(context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
