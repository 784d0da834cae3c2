package research

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/store"
)

// stubWorkflow returns a canned report or error.
type stubWorkflow struct {
	report *model.ResearchReport
	meta   *model.JobMetadata
	err    error
	calls  int
}

func (s *stubWorkflow) Run(ctx context.Context, identifier, subjectName string) (*model.ResearchReport, *model.JobMetadata, error) {
	s.calls++
	return s.report, s.meta, s.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCreateThenGet_Queued(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, &stubWorkflow{})

	job, err := m.Create(ctx, "bob", "Bob Smith")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Equal(t, "bob", got.Identifier)
	assert.Equal(t, "Bob Smith", got.SubjectName)
	assert.Nil(t, got.Result)
	assert.Empty(t, got.ErrorDetail)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreate_Validation(t *testing.T) {
	m := NewManager(newTestStore(t), &stubWorkflow{})

	_, err := m.Create(context.Background(), "", "Bob")
	assert.Error(t, err)

	_, err = m.Create(context.Background(), "bob", "   ")
	assert.Error(t, err)
}

func TestCreate_IndependentJobsPerCall(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(t), &stubWorkflow{})

	a, err := m.Create(ctx, "bob", "Bob")
	require.NoError(t, err)
	b, err := m.Create(ctx, "bob", "Bob")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestExecute_Success(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	wf := &stubWorkflow{
		report: &model.ResearchReport{
			Report:  "# Bob Smith\n\nA thorough writeup.",
			Sources: []model.Source{{URL: "https://example.com", Summary: "bio"}},
		},
		meta: &model.JobMetadata{SearchResults: 4, WebSummaries: 2, LinkedInDataAvailable: true},
	}
	m := NewManager(st, wf)

	job, err := m.Create(ctx, "bob", "Bob Smith")
	require.NoError(t, err)

	m.Execute(ctx, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.NotEmpty(t, got.Result.Report)
	assert.Empty(t, got.ErrorDetail)
	assert.Equal(t, 2, got.Metadata.WebSummaries)
	assert.GreaterOrEqual(t, got.Metadata.ElapsedMS, int64(0))
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
}

func TestExecute_WorkflowError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	wf := &stubWorkflow{err: eris.New("linkedin step: profile unavailable")}
	m := NewManager(st, wf)

	job, err := m.Create(ctx, "bob", "Bob")
	require.NoError(t, err)

	m.Execute(ctx, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Nil(t, got.Result)
	assert.Contains(t, got.ErrorDetail, "profile unavailable")
	assert.NotEmpty(t, got.Metadata.Trace, "failure must carry a captured trace")
	require.NotNil(t, got.FailedAt)
}

func TestExecute_EmptyReportIsFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	wf := &stubWorkflow{report: &model.ResearchReport{}}
	m := NewManager(st, wf)

	job, err := m.Create(ctx, "bob", "Bob")
	require.NoError(t, err)

	m.Execute(ctx, job.ID)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorDetail, "without a report")
}

func TestExecute_UnknownJobIsNoOp(t *testing.T) {
	m := NewManager(newTestStore(t), &stubWorkflow{})
	// Must not panic or create records.
	m.Execute(context.Background(), "no-such-job")
}

func TestExecute_TerminalJobNotReexecuted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	wf := &stubWorkflow{report: &model.ResearchReport{Report: "r"}}
	m := NewManager(st, wf)

	job, err := m.Create(ctx, "bob", "Bob")
	require.NoError(t, err)
	m.Execute(ctx, job.ID)
	require.Equal(t, 1, wf.calls)

	// A second Execute cannot move the job out of completed, and the
	// workflow must not run again.
	m.Execute(ctx, job.ID)
	assert.Equal(t, 1, wf.calls)

	got, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

// randomWorkflow flips between success and failure per call.
type randomWorkflow struct {
	rng *rand.Rand
}

func (r *randomWorkflow) Run(ctx context.Context, identifier, subjectName string) (*model.ResearchReport, *model.JobMetadata, error) {
	if r.rng.IntN(2) == 0 {
		return nil, &model.JobMetadata{StepErrors: []string{"injected"}}, eris.New("injected failure")
	}
	return &model.ResearchReport{Report: "ok"}, &model.JobMetadata{}, nil
}

func TestExecute_ResultIffCompleted_ErrorIffFailed(t *testing.T) {
	// Property over randomized success/failure injection: result present iff
	// completed, errorDetail present iff failed, never both.
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, &randomWorkflow{rng: rand.New(rand.NewPCG(1, 2))})

	for i := 0; i < 50; i++ {
		job, err := m.Create(ctx, "subject", "Subject")
		require.NoError(t, err)
		m.Execute(ctx, job.ID)

		got, err := m.Get(ctx, job.ID)
		require.NoError(t, err)

		switch got.Status {
		case model.JobStatusCompleted:
			assert.NotNil(t, got.Result)
			assert.Empty(t, got.ErrorDetail)
		case model.JobStatusFailed:
			assert.Nil(t, got.Result)
			assert.NotEmpty(t, got.ErrorDetail)
		default:
			t.Fatalf("job finished in non-terminal status %s", got.Status)
		}
	}
}
