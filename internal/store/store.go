package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-scout/internal/model"
)

// ErrNotFound is returned when a profile or job lookup matches nothing.
// Adapters wrap it so callers can test with errors.Is.
var ErrNotFound = eris.New("not found")

// ErrInvalidTransition is returned when a job status update would move the
// lifecycle backward (e.g. completing a job that is not processing).
var ErrInvalidTransition = eris.New("invalid status transition")

// JobFilter specifies criteria for listing research jobs.
type JobFilter struct {
	Status     model.JobStatus `json:"status,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store is the persistence contract shared by the resolver and the research
// state machine. It is the single source of truth for profiles and jobs;
// callers hold no authoritative state beyond one call.
type Store interface {
	// Profiles
	PutProfile(ctx context.Context, p model.Profile) error
	GetProfile(ctx context.Context, identifier string) (*model.Profile, error)
	// GetProfiles is a multi-get: identifiers absent from the cache are
	// simply missing from the returned map, never an error.
	GetProfiles(ctx context.Context, identifiers []string) (map[string]model.Profile, error)

	// Research jobs
	CreateJob(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error)
	GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error)
	MarkJobProcessing(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, result model.ResearchReport, meta model.JobMetadata) error
	FailJob(ctx context.Context, jobID string, errorDetail string, meta model.JobMetadata) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ResearchJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}
