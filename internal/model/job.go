package model

import "time"

// JobStatus represents the lifecycle state of a research job.
// Transitions are one-directional: queued → processing → completed|failed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Source is one web source consulted during research.
type Source struct {
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// ResearchReport is the final output of a completed research job.
type ResearchReport struct {
	Report  string   `json:"report"`
	Sources []Source `json:"sources"`
}

// JobMetadata carries diagnostic counters accumulated during workflow
// execution. Persisted on both completion and failure.
type JobMetadata struct {
	SearchResults        int      `json:"search_results"`
	WebSummaries         int      `json:"web_summaries"`
	LinkedInDataAvailable bool    `json:"linkedin_data_available"`
	StepErrors           []string `json:"step_errors,omitempty"`
	ElapsedMS            int64    `json:"elapsed_ms"`
	Trace                string   `json:"trace,omitempty"` // stack trace string on failure
}

// ResearchJob is a tracked, asynchronously executed enrichment task.
// Result is non-nil iff Status is completed; ErrorDetail is non-empty iff
// Status is failed. Jobs are never deleted by this layer.
type ResearchJob struct {
	ID          string          `json:"id"`
	Identifier  string          `json:"identifier"`
	SubjectName string          `json:"subject_name"`
	Status      JobStatus       `json:"status"`
	Result      *ResearchReport `json:"result,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Metadata    JobMetadata     `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}
