package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/adapters/llm"
	"mentionscan/internal/domain"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
)

func TestChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.Equal(t, "hello?", body.Messages[0].Content)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" hi there "}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := llm.NewChatCompletions(srv.URL, "sk-openai", "gpt-test", srv.Client())
	got, err := c.Complete(context.Background(), "hello?")

	require.NoError(t, err)
	assert.Equal(t, ports.Completion{Text: "hi there", InputTokens: 7, OutputTokens: 3}, got)
}

func TestChatCompletions_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := llm.NewChatCompletions(srv.URL, "k", "m", srv.Client()).Complete(context.Background(), "q")

	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestChatCompletions_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := llm.NewChatCompletions(srv.URL, "k", "m", srv.Client()).Complete(context.Background(), "q")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"part one, "},{"text":"part two"}]}}],
"usageMetadata":{"promptTokenCount":11,"candidatesTokenCount":4}}`))
	}))
	defer srv.Close()

	got, err := llm.NewGemini(srv.URL, "g-key", "gemini-test", srv.Client()).Complete(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, ports.Completion{Text: "part one, part two", InputTokens: 11, OutputTokens: 4}, got)
}

func TestAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"I know them."}],"stop_reason":"end_turn",
"usage":{"input_tokens":12,"output_tokens":3}}`))
	}))
	defer srv.Close()

	got, err := llm.NewAnthropic("a-key", "claude-test", srv.URL, srv.Client()).Complete(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, ports.Completion{Text: "I know them.", InputTokens: 12, OutputTokens: 3}, got)
}

type stubProvider struct {
	text string
	err  error
}

func (s stubProvider) Complete(context.Context, string) (ports.Completion, error) {
	return ports.Completion{Text: s.text}, s.err
}

func TestRouter(t *testing.T) {
	m := metrics.New(nil)
	r := llm.NewRouter(time.Second, m, nil).
		Register(domain.PlatformClaude, stubProvider{text: "ok"}).
		Register(domain.PlatformGemini, stubProvider{err: errors.New("boom")})

	got, err := r.Complete(context.Background(), domain.PlatformClaude, "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)

	_, err = r.Complete(context.Background(), domain.PlatformGemini, "q")
	assert.EqualError(t, err, "gemini: boom")

	_, err = r.Complete(context.Background(), domain.PlatformChatGPT, "q")
	assert.ErrorIs(t, err, llm.ErrPlatformUnavailable)

	assert.Equal(t, []domain.Platform{domain.PlatformClaude, domain.PlatformGemini},
		r.Platforms(domain.PlatformChatGPT, domain.PlatformClaude, domain.PlatformGemini, domain.PlatformPerplexity))
	assert.InDelta(t, 1, testutil.ToFloat64(m.LLMCalls.WithLabelValues("gemini", "error")), 0)
}
