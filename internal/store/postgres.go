package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-scout/internal/db"
	"github.com/sells-group/profile-scout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of the resolver and the job state machine.
var preparedStatements = map[string]string{
	"put_profile": `INSERT INTO profiles (identifier, data, fetched_at) VALUES ($1, $2, $3)
		ON CONFLICT (identifier) DO UPDATE SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at`,
	"get_profile":  `SELECT data FROM profiles WHERE identifier = $1`,
	"get_profiles": `SELECT identifier, data FROM profiles WHERE identifier = ANY($1)`,
	"insert_job": `INSERT INTO research_jobs (id, identifier, subject_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
	"get_job": `SELECT id, identifier, subject_name, status, result, error_detail, metadata,
		created_at, started_at, completed_at, failed_at FROM research_jobs WHERE id = $1`,
	"mark_processing": `UPDATE research_jobs SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`,
	"complete_job": `UPDATE research_jobs SET status = $1, result = $2, metadata = $3, completed_at = $4
		WHERE id = $5 AND status = $6`,
	"fail_job": `UPDATE research_jobs SET status = $1, error_detail = $2, metadata = $3, failed_at = $4
		WHERE id = $5 AND status = ANY($6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	identifier TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identifier   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	result       JSONB,
	error_detail TEXT,
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	failed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_research_jobs_status ON research_jobs(status);
CREATE INDEX IF NOT EXISTS idx_research_jobs_identifier ON research_jobs(identifier);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, p model.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (identifier, data, fetched_at) VALUES ($1, $2, $3)
		 ON CONFLICT (identifier) DO UPDATE SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at`,
		p.Identifier, data, p.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put profile %s", p.Identifier)
}

func (s *PostgresStore) GetProfile(ctx context.Context, identifier string) (*model.Profile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM profiles WHERE identifier = $1`, identifier,
	).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: profile %s", identifier)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", identifier)
	}

	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &p, nil
}

func (s *PostgresStore) GetProfiles(ctx context.Context, identifiers []string) (map[string]model.Profile, error) {
	result := make(map[string]model.Profile, len(identifiers))
	if len(identifiers) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT identifier, data FROM profiles WHERE identifier = ANY($1)`, identifiers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profiles")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		var p model.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal profile %s", id)
		}
		result[id] = p
	}
	return result, eris.Wrap(rows.Err(), "postgres: get profiles iterate")
}

func (s *PostgresStore) CreateJob(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_jobs (id, identifier, subject_name, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, identifier, subjectName, string(model.JobStatusQueued), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.ResearchJob{
		ID:          id,
		Identifier:  identifier,
		SubjectName: subjectName,
		Status:      model.JobStatusQueued,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, identifier, subject_name, status, result, error_detail, metadata,
		        created_at, started_at, completed_at, failed_at
		 FROM research_jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJobPG(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) MarkJobProcessing(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		string(model.JobStatusProcessing), time.Now().UTC(), jobID, string(model.JobStatusQueued),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job processing %s", jobID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), jobID)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result model.ResearchReport, meta model.JobMetadata) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET status = $1, result = $2, metadata = $3, completed_at = $4
		 WHERE id = $5 AND status = $6`,
		string(model.JobStatusCompleted), resultJSON, metaJSON,
		time.Now().UTC(), jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), jobID)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errorDetail string, meta model.JobMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET status = $1, error_detail = $2, metadata = $3, failed_at = $4
		 WHERE id = $5 AND status = ANY($6)`,
		string(model.JobStatusFailed), errorDetail, metaJSON, time.Now().UTC(),
		jobID, []string{string(model.JobStatusQueued), string(model.JobStatusProcessing)},
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	return s.checkTransition(ctx, tag.RowsAffected(), jobID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ResearchJob, error) {
	query := `SELECT id, identifier, subject_name, status, result, error_detail, metadata,
	                 created_at, started_at, completed_at, failed_at
	          FROM research_jobs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Identifier != "" {
		query += ` AND identifier = ` + arg(filter.Identifier)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ResearchJob
	for rows.Next() {
		job, err := scanJobPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) checkTransition(ctx context.Context, affected int64, jobID string) error {
	if affected > 0 {
		return nil
	}

	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM research_jobs WHERE id = $1`, jobID).Scan(&status)
	if err == pgx.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", jobID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check job %s", jobID)
	}
	return eris.Wrapf(ErrInvalidTransition, "postgres: job %s in status %s", jobID, status)
}

// pgScannable matches both pgx.Row and pgx.Rows.
type pgScannable interface {
	Scan(dest ...any) error
}

func scanJobPG(row pgScannable) (*model.ResearchJob, error) {
	var j model.ResearchJob
	var resultJSON, metaJSON []byte
	var errorDetail *string
	var startedAt, completedAt, failedAt *time.Time

	err := row.Scan(&j.ID, &j.Identifier, &j.SubjectName, &j.Status,
		&resultJSON, &errorDetail, &metaJSON,
		&j.CreatedAt, &startedAt, &completedAt, &failedAt)
	if err != nil {
		return nil, err
	}

	if len(resultJSON) > 0 {
		j.Result = &model.ResearchReport{}
		if err := json.Unmarshal(resultJSON, j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal job result")
		}
	}
	if errorDetail != nil {
		j.ErrorDetail = *errorDetail
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &j.Metadata); err != nil {
			return nil, eris.Wrap(err, "unmarshal job metadata")
		}
	}
	j.StartedAt = startedAt
	j.CompletedAt = completedAt
	j.FailedAt = failedAt
	return &j, nil
}
