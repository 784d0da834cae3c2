package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-scout/internal/model"
)

const (
	profileKeyPrefix = "profile:"
	jobKeyPrefix     = "research:"
)

// RedisStore implements Store on top of Redis. Profiles and jobs are stored
// as JSON values under prefixed keys; the multi-get maps to MGET. The client
// is constructed explicitly at process start and closed at shutdown — there
// is no package-level singleton.
type RedisStore struct {
	client     *redis.Client
	profileTTL time.Duration // 0 = no expiry
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithProfileTTL sets an expiry on cached profiles. Jobs never expire.
func WithProfileTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.profileTTL = ttl
	}
}

// NewRedis connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func NewRedis(ctx context.Context, redisURL string, opts ...RedisOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	redisOpts.PoolSize = 10
	redisOpts.MinIdleConns = 2
	redisOpts.MaxRetries = 3
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}

	s := &RedisStore{client: client}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func profileKey(identifier string) string { return profileKeyPrefix + identifier }
func jobKey(jobID string) string          { return jobKeyPrefix + jobID }

// Migrate is a no-op: Redis needs no schema.
func (s *RedisStore) Migrate(ctx context.Context) error { return nil }

func (s *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.client.Ping(ctx).Err(), "redis: ping")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) PutProfile(ctx context.Context, p model.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "redis: marshal profile")
	}
	err = s.client.Set(ctx, profileKey(p.Identifier), data, s.profileTTL).Err()
	return eris.Wrapf(err, "redis: put profile %s", p.Identifier)
}

func (s *RedisStore) GetProfile(ctx context.Context, identifier string) (*model.Profile, error) {
	data, err := s.client.Get(ctx, profileKey(identifier)).Bytes()
	if err == redis.Nil {
		return nil, eris.Wrapf(ErrNotFound, "redis: profile %s", identifier)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get profile %s", identifier)
	}

	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "redis: unmarshal profile")
	}
	return &p, nil
}

func (s *RedisStore) GetProfiles(ctx context.Context, identifiers []string) (map[string]model.Profile, error) {
	result := make(map[string]model.Profile, len(identifiers))
	if len(identifiers) == 0 {
		return result, nil
	}

	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = profileKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: mget profiles")
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // missing key
		}
		var p model.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, eris.Wrapf(err, "redis: unmarshal profile %s", identifiers[i])
		}
		result[identifiers[i]] = p
	}
	return result, nil
}

func (s *RedisStore) CreateJob(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error) {
	job := &model.ResearchJob{
		ID:          uuid.New().String(),
		Identifier:  identifier,
		SubjectName: subjectName,
		Status:      model.JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.writeJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	return s.readJob(ctx, jobID)
}

func (s *RedisStore) MarkJobProcessing(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, model.JobStatusProcessing, func(job *model.ResearchJob) {
		now := time.Now().UTC()
		job.StartedAt = &now
	})
}

func (s *RedisStore) CompleteJob(ctx context.Context, jobID string, result model.ResearchReport, meta model.JobMetadata) error {
	return s.transition(ctx, jobID, model.JobStatusCompleted, func(job *model.ResearchJob) {
		now := time.Now().UTC()
		job.Result = &result
		job.Metadata = meta
		job.CompletedAt = &now
	})
}

func (s *RedisStore) FailJob(ctx context.Context, jobID string, errorDetail string, meta model.JobMetadata) error {
	return s.transition(ctx, jobID, model.JobStatusFailed, func(job *model.ResearchJob) {
		now := time.Now().UTC()
		job.ErrorDetail = errorDetail
		job.Metadata = meta
		job.FailedAt = &now
	})
}

func (s *RedisStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ResearchJob, error) {
	var jobs []model.ResearchJob

	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "redis: list jobs")
		}
		var job model.ResearchJob
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, eris.Wrap(err, "redis: unmarshal job")
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Identifier != "" && job.Identifier != filter.Identifier {
			continue
		}
		jobs = append(jobs, job)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "redis: scan jobs")
	}

	sortJobsByCreatedDesc(jobs)

	offset := filter.Offset
	if offset > len(jobs) {
		offset = len(jobs)
	}
	jobs = jobs[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// transition applies a guarded read-modify-write. The final SET is what
// readers observe, so a concurrent Get never sees a partial record.
func (s *RedisStore) transition(ctx context.Context, jobID string, next model.JobStatus, mutate func(*model.ResearchJob)) error {
	job, err := s.readJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransitionTo(next) {
		return eris.Wrapf(ErrInvalidTransition, "redis: job %s in status %s", jobID, job.Status)
	}
	job.Status = next
	mutate(job)
	return s.writeJob(ctx, job)
}

func (s *RedisStore) readJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, eris.Wrapf(ErrNotFound, "redis: job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get job %s", jobID)
	}

	var job model.ResearchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrap(err, "redis: unmarshal job")
	}
	return &job, nil
}

func (s *RedisStore) writeJob(ctx context.Context, job *model.ResearchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "redis: marshal job")
	}
	// Jobs are never expired by this layer; retention is an external policy.
	err = s.client.Set(ctx, jobKey(job.ID), data, 0).Err()
	return eris.Wrapf(err, "redis: write job %s", job.ID)
}

func sortJobsByCreatedDesc(jobs []model.ResearchJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
