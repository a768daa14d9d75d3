package models

import "time"

// ReviewStatus is the lifecycle state of a review.
type ReviewStatus string

const (
	ReviewStatusPending         ReviewStatus = "pending"
	ReviewStatusApproved        ReviewStatus = "approved"
	ReviewStatusRejected        ReviewStatus = "rejected"
	ReviewStatusFinallyApproved ReviewStatus = "finally_approved"
)

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected, ReviewStatusFinallyApproved:
		return true
	}
	return false
}

// ExtractionFailedMarker fills every field of a review whose reasoning
// response could not be parsed.
const ExtractionFailedMarker = "Error in processing"

// ReviewContent is the normalized answer of the reasoning service.
type ReviewContent struct {
	SuggestedCode            string `json:"refactored_code"`
	Vulnerabilities          string `json:"vulnerabilities"`
	Changes                  string `json:"changes"`
	TimeComplexityOriginal   string `json:"time_complexity_original"`
	TimeComplexityRefactored string `json:"time_complexity_refactored"`
}

// ExtractionFailedContent returns the sentinel content used when the
// reasoning response cannot be understood.
func ExtractionFailedContent() ReviewContent {
	return ReviewContent{
		SuggestedCode:            ExtractionFailedMarker,
		Vulnerabilities:          ExtractionFailedMarker,
		Changes:                  ExtractionFailedMarker,
		TimeComplexityOriginal:   ExtractionFailedMarker,
		TimeComplexityRefactored: ExtractionFailedMarker,
	}
}

// VerdictStatus classifies a sandbox run.
type VerdictStatus string

const (
	VerdictCompiled    VerdictStatus = "Compiled"
	VerdictNotCompiled VerdictStatus = "Not Compiled"
)

// Verdict is the classified outcome of one sandbox execution.
type Verdict struct {
	Status  VerdictStatus `json:"status"`
	Message string        `json:"message"`
}

// Review is the persisted outcome of submitting code for critique.
type Review struct {
	ID                       string        `json:"id"`
	AuthorID                 string        `json:"author_id"`
	AuthorName               string        `json:"author_name"` // joined on read, not stored
	OriginalCode             string        `json:"original_code"`
	SuggestedCode            string        `json:"suggested_code"`
	Vulnerabilities          string        `json:"vulnerabilities"`
	Changes                  string        `json:"changes"`
	TimeComplexityOriginal   string        `json:"time_complexity_original"`
	TimeComplexityRefactored string        `json:"time_complexity_refactored"`
	OriginalVerdict          VerdictStatus `json:"original_verdict"`
	OriginalVerdictMessage   string        `json:"original_verdict_message"`
	SuggestedVerdict         VerdictStatus `json:"suggested_verdict"`
	SuggestedVerdictMessage  string        `json:"suggested_verdict_message"`
	ExtractionFailed         bool          `json:"extraction_failed"`
	Status                   ReviewStatus  `json:"status"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// ApplyContent copies normalized content onto the review.
func (r *Review) ApplyContent(c ReviewContent) {
	r.SuggestedCode = c.SuggestedCode
	r.Vulnerabilities = c.Vulnerabilities
	r.Changes = c.Changes
	r.TimeComplexityOriginal = c.TimeComplexityOriginal
	r.TimeComplexityRefactored = c.TimeComplexityRefactored
}
