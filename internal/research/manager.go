// Package research owns the lifecycle of deep-research jobs: creation,
// dispatch to a bounded worker pool, and the durable status transitions
// queued → processing → completed|failed.
package research

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/store"
)

// Workflow is the opaque multi-step enrichment run for one subject. It
// returns a report with sources, plus metadata counters, or fails with a
// descriptive error. Implementations may run for minutes.
type Workflow interface {
	Run(ctx context.Context, identifier, subjectName string) (*model.ResearchReport, *model.JobMetadata, error)
}

// Manager is the research job state machine. All durable state lives in the
// store; the manager itself holds nothing across calls.
type Manager struct {
	store    store.Store
	workflow Workflow
}

// NewManager creates a Manager.
func NewManager(st store.Store, wf Workflow) *Manager {
	return &Manager{store: st, workflow: wf}
}

// Create writes a queued job record and returns it immediately, without
// waiting for execution. Repeated calls for the same identifier each
// produce an independent job.
func (m *Manager) Create(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error) {
	identifier = strings.TrimSpace(identifier)
	subjectName = strings.TrimSpace(subjectName)
	if identifier == "" {
		return nil, eris.New("research: identifier is required")
	}
	if subjectName == "" {
		return nil, eris.New("research: subject name is required")
	}

	job, err := m.store.CreateJob(ctx, identifier, subjectName)
	if err != nil {
		return nil, eris.Wrap(err, "research: create job")
	}

	zap.L().Info("research: job created",
		zap.String("job_id", job.ID),
		zap.String("identifier", identifier),
	)
	return job, nil
}

// Get returns the current job snapshot verbatim, including partial metadata
// while the job is processing.
func (m *Manager) Get(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	return m.store.GetJob(ctx, jobID)
}

// List returns jobs matching the filter.
func (m *Manager) List(ctx context.Context, filter store.JobFilter) ([]model.ResearchJob, error) {
	return m.store.ListJobs(ctx, filter)
}

// Execute runs the workflow for one job and persists the outcome. Each
// transition write is the unit of durability: a crash between workflow
// completion and the final write leaves the job in processing (recovering
// stuck jobs is operational tooling, not this layer).
func (m *Manager) Execute(ctx context.Context, jobID string) {
	log := zap.L().With(zap.String("job_id", jobID))

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("research: job lookup failed, skipping execution", zap.Error(err))
		return
	}

	if err := m.store.MarkJobProcessing(ctx, jobID); err != nil {
		log.Error("research: cannot move job to processing", zap.Error(err))
		return
	}
	log.Info("research: executing workflow",
		zap.String("identifier", job.Identifier),
		zap.String("subject", job.SubjectName),
	)

	start := time.Now()
	report, meta, err := m.workflow.Run(ctx, job.Identifier, job.SubjectName)
	elapsed := time.Since(start)

	if meta == nil {
		meta = &model.JobMetadata{}
	}
	meta.ElapsedMS = elapsed.Milliseconds()

	if err == nil && (report == nil || report.Report == "") {
		err = eris.New("research: workflow completed without a report")
	}

	if err != nil {
		meta.Trace = eris.ToString(err, true)
		if failErr := m.store.FailJob(ctx, jobID, err.Error(), *meta); failErr != nil {
			log.Error("research: failed to persist job failure", zap.Error(failErr))
			return
		}
		log.Warn("research: job failed",
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}

	if err := m.store.CompleteJob(ctx, jobID, *report, *meta); err != nil {
		log.Error("research: failed to persist job completion", zap.Error(err))
		return
	}
	log.Info("research: job completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("sources", len(report.Sources)),
	)
}
