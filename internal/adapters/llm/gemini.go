package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"mentionscan/internal/ports"
)

const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Gemini struct {
	baseURL string
	key     string
	model   string
	http    *http.Client
}

// NewGemini calls the generateContent REST endpoint. An empty baseURL uses
// GeminiBaseURL.
func NewGemini(baseURL, key, model string, client *http.Client) *Gemini {
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	return &Gemini{baseURL: strings.TrimRight(baseURL, "/"), key: key, model: model, http: defaultClient(client)}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (ports.Completion, error) {
	req := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}
	req.GenerationConfig.MaxOutputTokens = defaultMaxTokens

	endpoint := g.baseURL + "/models/" + url.PathEscape(g.model) + ":generateContent"
	var out geminiResponse
	if err := postJSON(ctx, g.http, endpoint, map[string]string{"x-goog-api-key": g.key}, req, &out); err != nil {
		return ports.Completion{}, err
	}
	if len(out.Candidates) == 0 {
		return ports.Completion{}, ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return ports.Completion{}, ErrEmptyResponse
	}
	return ports.Completion{
		Text:         text,
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}, nil
}
