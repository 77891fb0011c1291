package llm

import (
	"context"
	"net/http"
	"strings"

	"mentionscan/internal/ports"
)

const (
	OpenAIURL     = "https://api.openai.com/v1/chat/completions"
	PerplexityURL = "https://api.perplexity.ai/chat/completions"
)

// ChatCompletions speaks the OpenAI chat completions protocol, which
// Perplexity also implements.
type ChatCompletions struct {
	url   string
	key   string
	model string
	http  *http.Client
}

func NewChatCompletions(url, key, model string, client *http.Client) *ChatCompletions {
	return &ChatCompletions{url: url, key: key, model: model, http: defaultClient(client)}
}

func NewOpenAI(key, model string, client *http.Client) *ChatCompletions {
	return NewChatCompletions(OpenAIURL, key, model, client)
}

func NewPerplexity(key, model string, client *http.Client) *ChatCompletions {
	return NewChatCompletions(PerplexityURL, key, model, client)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *ChatCompletions) Complete(ctx context.Context, prompt string) (ports.Completion, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   defaultMaxTokens,
	}
	var out chatResponse
	if err := postJSON(ctx, c.http, c.url, map[string]string{"Authorization": "Bearer " + c.key}, req, &out); err != nil {
		return ports.Completion{}, err
	}
	if len(out.Choices) == 0 {
		return ports.Completion{}, ErrEmptyResponse
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return ports.Completion{}, ErrEmptyResponse
	}
	return ports.Completion{
		Text:         text,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}
