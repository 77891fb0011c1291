package domain

import "time"

// Core domain models shared by the scan pipeline. Persistence shapes live in
// the adapters; keep these decoupled where helpful.

type Platform string

const (
	PlatformChatGPT    Platform = "chatgpt"
	PlatformClaude     Platform = "claude"
	PlatformGemini     Platform = "gemini"
	PlatformPerplexity Platform = "perplexity"
)

// ResearchPlatforms is the fixed order platforms are asked for query ideas.
var ResearchPlatforms = []Platform{PlatformChatGPT, PlatformClaude, PlatformGemini}

// KnownPlatform reports whether p is a supported platform id.
func KnownPlatform(p Platform) bool {
	switch p {
	case PlatformChatGPT, PlatformClaude, PlatformGemini, PlatformPerplexity:
		return true
	}
	return false
}

type Category string

const (
	CategoryFindingProvider Category = "finding_provider"
	CategoryProductSpecific Category = "product_specific"
	CategoryService         Category = "service"
	CategoryComparison      Category = "comparison"
	CategoryReview          Category = "review"
	CategoryHowTo           Category = "how_to"
	CategoryGeneral         Category = "general"
)

type CrawledPage struct {
	URL         string
	Path        string
	Title       string
	Description string
	H1          string
	Headings    []string
	BodyText    string
	WordCount   int
}

type CrawlResult struct {
	Domain     string
	Pages      []CrawledPage
	TotalPages int
}

type BusinessAnalysis struct {
	BusinessType   string   `json:"businessType"`
	BusinessName   string   `json:"businessName,omitempty"`
	Location       string   `json:"location,omitempty"`
	Industry       string   `json:"industry"`
	Services       []string `json:"services"`
	Products       []string `json:"products"`
	KeyPhrases     []string `json:"keyPhrases"`
	TargetAudience string   `json:"targetAudience,omitempty"`
}

type RawQuerySuggestion struct {
	Query    string
	Category Category
	Platform Platform
}

type ResearchedQuery struct {
	Query          string     `json:"query"`
	Category       Category   `json:"category"`
	SuggestedBy    []Platform `json:"suggestedBy"`
	RelevanceScore int        `json:"relevanceScore"`
}

type ScanStatus string

const (
	ScanPending    ScanStatus = "pending"
	ScanCrawling   ScanStatus = "crawling"
	ScanAnalyzing  ScanStatus = "analyzing"
	ScanGenerating ScanStatus = "generating"
	ScanQuerying   ScanStatus = "querying"
	ScanComplete   ScanStatus = "complete"
	ScanFailed     ScanStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ScanStatus) Terminal() bool { return s == ScanComplete || s == ScanFailed }

type EnrichmentStatus string

const (
	EnrichmentNone       EnrichmentStatus = ""
	EnrichmentProcessing EnrichmentStatus = "processing"
	EnrichmentComplete   EnrichmentStatus = "complete"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

type ScanRun struct {
	ID                   string
	Domain               string
	LeadID               string
	DomainSubscriptionID *string
	Status               ScanStatus
	Progress             int
	ErrorMessage         *string
	StartedAt            *time.Time
	CompletedAt          *time.Time
	EnrichmentStatus     EnrichmentStatus
	QueriesTotal         int
	QueriesDone          int
	Score                *int
}

// InFlightKey is the key used to enforce one non-terminal run at a time.
func (r ScanRun) InFlightKey() string {
	return InFlightKey(r.LeadID, r.DomainSubscriptionID)
}

func InFlightKey(leadID string, subscriptionID *string) string {
	if subscriptionID != nil && *subscriptionID != "" {
		return "sub:" + *subscriptionID
	}
	return "lead:" + leadID
}

type SubscriptionStatus string

const (
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
)

type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

type DomainSubscription struct {
	ID               string
	LeadID           string
	Domain           string
	Status           SubscriptionStatus
	Tier             Tier
	ScanScheduleDay  int
	ScanScheduleHour int
	ScanTimezone     string
}

type PlatformResult struct {
	RunID       string
	Query       string
	Platform    Platform
	Response    string
	Mentioned   bool
	Position    int
	Competitors []string
}

type BrandAwarenessResult struct {
	RunID      string
	Platform   Platform
	Recognized bool
	Response   string
}

type Usage struct {
	RunID        string
	Platform     Platform
	Purpose      string
	InputTokens  int64
	OutputTokens int64
}
