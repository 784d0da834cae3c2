package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-scout/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ProfileRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := model.Profile{
			Identifier:     "alice",
			URL:            "https://www.linkedin.com/in/alice",
			Name:           "Alice Levi",
			Headline:       "AI Engineer at Acme",
			Location:       "Tel Aviv, Israel",
			CurrentCompany: "Acme",
			Skills:         []string{"Go", "Python"},
			FetchedAt:      time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, s.PutProfile(ctx, p))

		got, err := s.GetProfiles(ctx, []string{"alice"})
		require.NoError(t, err)
		require.Contains(t, got, "alice")
		assert.Equal(t, p.Name, got["alice"].Name)
		assert.Equal(t, p.Skills, got["alice"].Skills)

		single, err := s.GetProfile(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, p.Headline, single.Headline)
	})

	t.Run("ProfileOverwriteOnRefetch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.PutProfile(ctx, model.Profile{Identifier: "bob", Name: "Bob", FetchedAt: time.Now().UTC()}))
		require.NoError(t, s.PutProfile(ctx, model.Profile{Identifier: "bob", Name: "Bob Smith", FetchedAt: time.Now().UTC()}))

		got, err := s.GetProfile(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "Bob Smith", got.Name)
	})

	t.Run("GetProfilesMissingKeysOmitted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.PutProfile(ctx, model.Profile{Identifier: "alice", Name: "Alice", FetchedAt: time.Now().UTC()}))

		got, err := s.GetProfiles(ctx, []string{"alice", "nobody", "ghost"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Contains(t, got, "alice")
		assert.NotContains(t, got, "nobody")
	})

	t.Run("GetProfilesEmptyInput", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetProfiles(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("GetProfileNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetProfile(context.Background(), "ghost")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("JobLifecycleCompleted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "alice", "Alice Levi")
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusQueued, job.Status)
		assert.Nil(t, job.Result)
		assert.Empty(t, job.ErrorDetail)

		require.NoError(t, s.MarkJobProcessing(ctx, job.ID))
		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, got.Status)
		require.NotNil(t, got.StartedAt)

		report := model.ResearchReport{
			Report:  "# Alice Levi\n\nSenior AI engineer...",
			Sources: []model.Source{{URL: "https://example.com/a", Summary: "profile writeup"}},
		}
		meta := model.JobMetadata{SearchResults: 5, WebSummaries: 3, LinkedInDataAvailable: true, ElapsedMS: 4200}
		require.NoError(t, s.CompleteJob(ctx, job.ID, report, meta))

		got, err = s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, report.Report, got.Result.Report)
		assert.Len(t, got.Result.Sources, 1)
		assert.Empty(t, got.ErrorDetail)
		assert.Equal(t, 3, got.Metadata.WebSummaries)
		require.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.FailedAt)
	})

	t.Run("JobLifecycleFailed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "bob", "Bob Smith")
		require.NoError(t, err)
		require.NoError(t, s.MarkJobProcessing(ctx, job.ID))

		meta := model.JobMetadata{StepErrors: []string{"web search: timeout"}, Trace: "workflow: web search failed\n\tat ..."}
		require.NoError(t, s.FailJob(ctx, job.ID, "web search failed after 3 attempts", meta))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Nil(t, got.Result)
		assert.Equal(t, "web search failed after 3 attempts", got.ErrorDetail)
		assert.NotEmpty(t, got.Metadata.Trace)
		require.NotNil(t, got.FailedAt)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("JobFailWhileQueued", func(t *testing.T) {
		// A job that never reached processing can still be failed (e.g. the
		// queue rejected it), but never completed.
		s := newStore(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "carol", "Carol")
		require.NoError(t, err)

		err = s.CompleteJob(ctx, job.ID, model.ResearchReport{Report: "x"}, model.JobMetadata{})
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInvalidTransition))

		require.NoError(t, s.FailJob(ctx, job.ID, "executor rejected job", model.JobMetadata{}))
	})

	t.Run("JobTransitionsAreForwardOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job, err := s.CreateJob(ctx, "dave", "Dave")
		require.NoError(t, err)
		require.NoError(t, s.MarkJobProcessing(ctx, job.ID))
		require.NoError(t, s.CompleteJob(ctx, job.ID, model.ResearchReport{Report: "done"}, model.JobMetadata{}))

		// Terminal states reject every further transition.
		assert.Error(t, s.MarkJobProcessing(ctx, job.ID))
		assert.Error(t, s.CompleteJob(ctx, job.ID, model.ResearchReport{Report: "again"}, model.JobMetadata{}))
		assert.Error(t, s.FailJob(ctx, job.ID, "too late", model.JobMetadata{}))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.Equal(t, "done", got.Result.Report)
		assert.Empty(t, got.ErrorDetail)
	})

	t.Run("JobNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetJob(ctx, "nonexistent")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		err = s.MarkJobProcessing(ctx, "nonexistent")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("RepeatedCreateSameIdentifier", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateJob(ctx, "alice", "Alice")
		require.NoError(t, err)
		b, err := s.CreateJob(ctx, "alice", "Alice")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("ListJobsFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		j1, err := s.CreateJob(ctx, "alice", "Alice")
		require.NoError(t, err)
		_, err = s.CreateJob(ctx, "bob", "Bob")
		require.NoError(t, err)
		require.NoError(t, s.MarkJobProcessing(ctx, j1.ID))

		processing, err := s.ListJobs(ctx, JobFilter{Status: model.JobStatusProcessing})
		require.NoError(t, err)
		require.Len(t, processing, 1)
		assert.Equal(t, j1.ID, processing[0].ID)

		forAlice, err := s.ListJobs(ctx, JobFilter{Identifier: "alice"})
		require.NoError(t, err)
		require.Len(t, forAlice, 1)

		all, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		limited, err := s.ListJobs(ctx, JobFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("ListJobsOffsetPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"alice", "bob", "carol"} {
			_, err := s.CreateJob(ctx, id, id)
			require.NoError(t, err)
		}

		page, err := s.ListJobs(ctx, JobFilter{Offset: 1, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page, 2)

		page, err = s.ListJobs(ctx, JobFilter{Offset: 2, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, page, 1)

		page, err = s.ListJobs(ctx, JobFilter{Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
