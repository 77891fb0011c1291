package ports

import (
	"context"

	"mentionscan/internal/domain"
)

// Completion is a single LLM answer plus token usage for cost tracking.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// LLMClient asks one platform a prompt. Timeouts and non-2xx responses are
// returned as ordinary errors so callers can absorb them per platform.
type LLMClient interface {
	Complete(ctx context.Context, platform domain.Platform, prompt string) (Completion, error)
}

// Analyzer turns combined crawl text into a structured business analysis.
type Analyzer interface {
	Analyze(ctx context.Context, combinedText, tldCountry string) (domain.BusinessAnalysis, error)
}

// EventBus delivers named events to registered handlers.
type EventBus interface {
	Send(ctx context.Context, name string, payload any) error
}

// Event names.
const (
	EventScanRequested = "scan/requested"
	EventScanEnrich    = "scan/enrich"
)

// ScanRequest is the payload of EventScanRequested.
type ScanRequest struct {
	Domain               string  `json:"domain"`
	LeadID               string  `json:"leadId"`
	DomainSubscriptionID *string `json:"domainSubscriptionId,omitempty"`
}

// EnrichRequest is the payload of EventScanEnrich.
type EnrichRequest struct {
	ScanRunID string `json:"scanRunId"`
}
