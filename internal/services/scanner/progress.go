package scanner

import (
	"time"

	"mentionscan/internal/domain"
)

// GenericFailure is shown for failed runs that carry no message of their own.
const GenericFailure = "Something went wrong while scanning. Please try again."

type stage struct {
	percent int
	eta     int
	message string
}

var stages = map[domain.ScanStatus]stage{
	domain.ScanPending:    {0, 150, "Waiting to start"},
	domain.ScanCrawling:   {10, 140, "Reading your website"},
	domain.ScanAnalyzing:  {25, 120, "Understanding your business"},
	domain.ScanGenerating: {35, 105, "Working out what customers ask AI assistants"},
	domain.ScanQuerying:   {45, 90, "Asking AI assistants"},
	domain.ScanComplete:   {100, 0, "Scan complete"},
	domain.ScanFailed:     {100, 0, GenericFailure},
}

const (
	queryingEnd    = 95
	queryingMinEta = 5
)

// StatusPercent is the coarse progress stored when a run enters status.
func StatusPercent(status domain.ScanStatus) int {
	return stages[status].percent
}

type StatusView struct {
	ID               string                  `json:"id"`
	Domain           string                  `json:"domain"`
	Status           domain.ScanStatus       `json:"status"`
	Progress         int                     `json:"progress"`
	EtaSeconds       int                     `json:"etaSeconds"`
	Message          string                  `json:"message"`
	ErrorMessage     string                  `json:"errorMessage,omitempty"`
	Score            *int                    `json:"score,omitempty"`
	EnrichmentStatus domain.EnrichmentStatus `json:"enrichmentStatus,omitempty"`
	StartedAt        *time.Time              `json:"startedAt,omitempty"`
	CompletedAt      *time.Time              `json:"completedAt,omitempty"`
}

// View maps a run to what status polling shows. Within querying the
// percentage and estimate move linearly with completed platform queries.
func View(run domain.ScanRun) StatusView {
	st, ok := stages[run.Status]
	if !ok {
		st = stages[domain.ScanPending]
	}
	v := StatusView{
		ID:               run.ID,
		Domain:           run.Domain,
		Status:           run.Status,
		Progress:         st.percent,
		EtaSeconds:       st.eta,
		Message:          st.message,
		Score:            run.Score,
		EnrichmentStatus: run.EnrichmentStatus,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
	}

	switch run.Status {
	case domain.ScanQuerying:
		if run.QueriesTotal > 0 {
			frac := float64(min(run.QueriesDone, run.QueriesTotal)) / float64(run.QueriesTotal)
			v.Progress = st.percent + int(frac*float64(queryingEnd-st.percent))
			v.EtaSeconds = max(queryingMinEta, int(float64(st.eta)*(1-frac)))
		}
	case domain.ScanFailed:
		v.Progress = run.Progress
		v.Message = GenericFailure
		if run.ErrorMessage != nil && *run.ErrorMessage != "" {
			v.ErrorMessage = *run.ErrorMessage
		} else {
			v.ErrorMessage = GenericFailure
		}
	}
	return v
}
