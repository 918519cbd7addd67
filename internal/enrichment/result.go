package enrichment

import (
	"errors"
	"time"

	"github.com/smallbiznis/prospector/internal/quota"
)

// ErrProviderConfig aborts a batch when a provider reports a missing or
// rejected credential.
var ErrProviderConfig = errors.New("provider_config")

type Stage string

const (
	StageSearch  Stage = "search"
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageStore   Stage = "store"
)

type BatchRequest struct {
	// MaxTerms bounds the keywords leased for this run; the configured
	// maximum always applies.
	MaxTerms int `json:"max_terms"`
	// MaxAccepted caps newly accepted companies; zero uses the configured cap.
	MaxAccepted int `json:"max_accepted"`
}

// TermError is one recorded per-item failure.
type TermError struct {
	KeywordID int64  `json:"keyword_id,string"`
	Term      string `json:"term"`
	Stage     Stage  `json:"stage"`
	SourceURL string `json:"source_url,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

type Accepted struct {
	CompanyID int64  `json:"company_id,string"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Term      string `json:"term"`
}

type BatchResult struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	TermsProcessed int             `json:"terms_processed"`
	AcceptedCount  int             `json:"accepted_count"`
	ErrorCount     int             `json:"error_count"`
	SkippedCount   int             `json:"skipped_count"`
	Accepted       []Accepted      `json:"accepted"`
	PerTermErrors  []TermError     `json:"per_term_errors"`
	Denied         *quota.Decision `json:"denied,omitempty"`
	Cancelled      bool            `json:"cancelled"`
	Aborted        string          `json:"aborted,omitempty"`
}
