package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/profile-scout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	identifier TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS research_jobs (
	id           TEXT PRIMARY KEY,
	identifier   TEXT NOT NULL,
	subject_name TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	result       TEXT,
	error_detail TEXT,
	metadata     TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at   DATETIME,
	completed_at DATETIME,
	failed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_research_jobs_status ON research_jobs(status);
CREATE INDEX IF NOT EXISTS idx_research_jobs_identifier ON research_jobs(identifier);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutProfile(ctx context.Context, p model.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (identifier, data, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		p.Identifier, string(data), p.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put profile %s", p.Identifier)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, identifier string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE identifier = ?`, identifier,
	)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: profile %s", identifier)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", identifier)
	}

	var p model.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func (s *SQLiteStore) GetProfiles(ctx context.Context, identifiers []string) (map[string]model.Profile, error) {
	result := make(map[string]model.Profile, len(identifiers))
	if len(identifiers) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifiers)), ",")
	args := make([]any, len(identifiers))
	for i, id := range identifiers {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, data FROM profiles WHERE identifier IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profiles")
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		var p model.Profile
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal profile %s", id)
		}
		result[id] = p
	}
	return result, eris.Wrap(rows.Err(), "sqlite: get profiles iterate")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, identifier, subjectName string) (*model.ResearchJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_jobs (id, identifier, subject_name, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, identifier, subjectName, string(model.JobStatusQueued), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.ResearchJob{
		ID:          id,
		Identifier:  identifier,
		SubjectName: subjectName,
		Status:      model.JobStatusQueued,
		CreatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, identifier, subject_name, status, result, error_detail, metadata,
		        created_at, started_at, completed_at, failed_at
		 FROM research_jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) MarkJobProcessing(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusProcessing), time.Now().UTC(), jobID, string(model.JobStatusQueued),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job processing %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result model.ResearchReport, meta model.JobMetadata) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET status = ?, result = ?, metadata = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusCompleted), string(resultJSON), string(metaJSON),
		time.Now().UTC(), jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errorDetail string, meta model.JobMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET status = ?, error_detail = ?, metadata = ?, failed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.JobStatusFailed), errorDetail, string(metaJSON), time.Now().UTC(),
		jobID, string(model.JobStatusQueued), string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ResearchJob, error) {
	query := `SELECT id, identifier, subject_name, status, result, error_detail, metadata,
	                 created_at, started_at, completed_at, failed_at
	          FROM research_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Identifier != "" {
		query += ` AND identifier = ?`
		args = append(args, filter.Identifier)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ResearchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// checkTransition distinguishes a missing row from a guarded update that
// matched no rows because the job is not in an eligible status.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT status FROM research_jobs WHERE id = ?`, jobID)
	var status string
	if err := row.Scan(&status); err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", jobID)
	} else if err != nil {
		return eris.Wrapf(err, "sqlite: check job %s", jobID)
	}
	return eris.Wrapf(ErrInvalidTransition, "sqlite: job %s in status %s", jobID, status)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.ResearchJob, error) {
	var j model.ResearchJob
	var resultJSON, errorDetail, metaJSON sql.NullString
	var startedAt, completedAt, failedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Identifier, &j.SubjectName, &j.Status,
		&resultJSON, &errorDetail, &metaJSON,
		&j.CreatedAt, &startedAt, &completedAt, &failedAt)
	if err != nil {
		return nil, err
	}

	if resultJSON.Valid {
		j.Result = &model.ResearchReport{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal job result")
		}
	}
	if errorDetail.Valid {
		j.ErrorDetail = errorDetail.String
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &j.Metadata); err != nil {
			return nil, eris.Wrap(err, "unmarshal job metadata")
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		j.FailedAt = &t
	}
	return &j, nil
}
