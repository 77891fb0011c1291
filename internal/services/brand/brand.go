// Package brand checks whether each platform recognizes a business by name
// and summarizes how it compares with the competitors platforms mention.
package brand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
	"mentionscan/internal/ratelimit"
)

const recognitionPrompt = `What do you know about the business "%s" (website: %s)%s?

If you have specific knowledge of this exact business, describe what it does in one or two sentences.
If you do not know it, say so rather than guessing.

Respond with only a JSON object: {"recognized": true|false, "summary": "..."}`

var errNoObject = errors.New("no JSON object in response")

type Options struct {
	Platforms []domain.Platform
	Policy    ratelimit.Policy
	Logger    logger.Logger
}

type Engine struct {
	llm       ports.LLMClient
	usage     ports.UsageRepository
	platforms []domain.Platform
	policy    ratelimit.Policy
	log       logger.Logger
}

func New(llm ports.LLMClient, usage ports.UsageRepository, opts Options) *Engine {
	e := &Engine{llm: llm, usage: usage, platforms: opts.Platforms, policy: opts.Policy, log: opts.Logger}
	if len(e.platforms) == 0 {
		e.platforms = domain.ResearchPlatforms
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	return e
}

// Check asks every platform about the business. It returns one result per
// platform in platform order; a failed call yields an unrecognized result.
func (e *Engine) Check(ctx context.Context, runID, site string, a domain.BusinessAnalysis) ([]domain.BrandAwarenessResult, error) {
	prompt := renderRecognitionPrompt(site, a)
	log := e.log.With(logger.String("run_id", runID))
	out := make([]domain.BrandAwarenessResult, len(e.platforms))

	err := e.policy.Each(ctx, len(e.platforms), func(ctx context.Context, i int) {
		p := e.platforms[i]
		res := domain.BrandAwarenessResult{RunID: runID, Platform: p}
		completion, err := e.llm.Complete(ctx, p, prompt)
		if err != nil {
			log.Warn("brand check failed", logger.String("platform", string(p)), logger.Error(err))
			out[i] = res
			return
		}
		recordUsage(ctx, e.usage, log, runID, p, "brand_awareness", completion)
		res.Response = completion.Text
		rec, err := parseRecognition(completion.Text)
		if err != nil {
			log.Warn("brand check unparseable", logger.String("platform", string(p)), logger.Error(err))
		} else {
			res.Recognized = rec.Recognized
			if s := strings.TrimSpace(rec.Summary); s != "" {
				res.Response = s
			}
		}
		out[i] = res
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func renderRecognitionPrompt(site string, a domain.BusinessAnalysis) string {
	name := strings.TrimSpace(a.BusinessName)
	if name == "" {
		name = site
	}
	where := ""
	if loc := strings.TrimSpace(a.Location); loc != "" {
		where = ", located in " + loc
	}
	return fmt.Sprintf(recognitionPrompt, name, site, where)
}

type recognition struct {
	Recognized bool   `json:"recognized"`
	Summary    string `json:"summary"`
}

func parseRecognition(text string) (recognition, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return recognition{}, errNoObject
	}
	var r recognition
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return recognition{}, err
	}
	return r, nil
}

func recordUsage(ctx context.Context, repo ports.UsageRepository, log logger.Logger, runID string, p domain.Platform, purpose string, c ports.Completion) {
	if repo == nil {
		return
	}
	err := repo.RecordUsage(ctx, domain.Usage{
		RunID:        runID,
		Platform:     p,
		Purpose:      purpose,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
	})
	if err != nil {
		log.Warn("record usage failed", logger.Error(err))
	}
}
