package visibility_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/visibility"
)

const listAnswer = `Here are some well-reviewed plumbers in Sydney:

1. **Pipe Pros** - 24/7 emergency service.
2. **Acme Plumbing** - family owned, great reviews.
3. Drain Kings: specialists in blocked drains.

Always check licences before hiring.`

func TestTarget_Find(t *testing.T) {
	target := visibility.NewTarget("Acme Plumbing", "www.acmeplumbing.com.au")

	mentioned, pos := target.Find(listAnswer)
	assert.True(t, mentioned)
	assert.Equal(t, 2, pos)

	mentioned, pos = target.Find("You could try acmeplumbing.com.au for quotes.")
	assert.True(t, mentioned)
	assert.Zero(t, pos)

	mentioned, _ = target.Find("Try Pipe Pros.")
	assert.False(t, mentioned)
}

func TestCompetitors(t *testing.T) {
	target := visibility.NewTarget("Acme Plumbing", "acmeplumbing.com.au")

	assert.Equal(t, []string{"Pipe Pros", "Drain Kings"}, visibility.Competitors(listAnswer, target))
	assert.Empty(t, visibility.Competitors("No list here.", target))
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, visibility.Score(nil))
	assert.Equal(t, 33, visibility.Score([]domain.PlatformResult{{Mentioned: true}, {}, {}}))
	assert.Equal(t, 67, visibility.Score([]domain.PlatformResult{{Mentioned: true}, {Mentioned: true}, {}}))
	assert.Equal(t, 100, visibility.Score([]domain.PlatformResult{{Mentioned: true}}))
}

type scriptedLLM struct {
	mu    sync.Mutex
	calls []string
}

func (s *scriptedLLM) Complete(_ context.Context, p domain.Platform, prompt string) (ports.Completion, error) {
	s.mu.Lock()
	s.calls = append(s.calls, string(p)+":"+prompt)
	s.mu.Unlock()
	if p == domain.PlatformGemini {
		return ports.Completion{}, errors.New("timeout")
	}
	if p == domain.PlatformClaude {
		return ports.Completion{Text: listAnswer}, nil
	}
	return ports.Completion{Text: "I can't recommend specific businesses."}, nil
}

func TestExecutor_Run(t *testing.T) {
	llm := &scriptedLLM{}
	exec := visibility.New(llm, nil, visibility.Options{})
	queries := []domain.ResearchedQuery{{Query: "best plumber in sydney"}, {Query: "emergency plumber sydney"}}

	var progress []int
	results, err := exec.Run(context.Background(), "run-1", "acmeplumbing.com.au",
		domain.BusinessAnalysis{BusinessName: "Acme Plumbing"}, queries,
		func(done, total int) {
			assert.Equal(t, 6, total)
			progress = append(progress, done)
		})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.Equal(t, []string{
		"chatgpt:best plumber in sydney", "claude:best plumber in sydney", "gemini:best plumber in sydney",
		"chatgpt:emergency plumber sydney", "claude:emergency plumber sydney", "gemini:emergency plumber sydney",
	}, llm.calls)
	require.Len(t, results, 4, "failed gemini calls produce no result")
	assert.False(t, results[0].Mentioned)
	assert.True(t, results[1].Mentioned)
	assert.Equal(t, 2, results[1].Position)
	assert.Equal(t, []string{"Pipe Pros", "Drain Kings"}, results[1].Competitors)
	assert.Equal(t, 50, visibility.Score(results))
}
