package job

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"laserops/internal/apperrors"
)

// PostgresStore persists jobs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed job store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `
	id, user_id, machine_id, name, product_type, material, thickness_mm,
	cut_url, engrave_url, score_url, combined_url,
	width_mm, height_mm, speed_mm_sec, power_pct, passes, kerf_mm,
	priority, status, current_operation, progress_pct,
	safety_validated, safety_warnings,
	retry_count, max_retries, error_code, error_message,
	created_at, started_at, completed_at, estimated_time_sec, actual_time_sec,
	machine_cost, material_cost, total_cost, batch_id, source_artifact_id`

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO laser_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
		        $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)`

	_, err := s.db.ExecContext(ctx, query,
		j.ID, j.UserID, j.MachineID, j.Name, j.ProductType, j.Material, j.ThicknessMm,
		j.Artifacts.CutURL, j.Artifacts.EngraveURL, j.Artifacts.ScoreURL, j.Artifacts.CombinedURL,
		j.WidthMm, j.HeightMm, j.SpeedMmSec, j.PowerPct, j.Passes, j.KerfMm,
		j.Priority, j.Status, j.CurrentOperation, j.ProgressPct,
		j.SafetyValidated, pq.Array(j.SafetyWarnings),
		j.RetryCount, j.MaxRetries, j.ErrorCode, j.ErrorMessage,
		j.CreatedAt, j.StartedAt, j.CompletedAt, j.EstimatedTimeSec, j.ActualTimeSec,
		j.MachineCost, j.MaterialCost, j.TotalCost, j.BatchID, j.SourceArtifactID,
	)
	if err != nil {
		return apperrors.Internal("jobstore.create", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM laser_jobs WHERE id = $1`
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, apperrors.Internal("jobstore.get", err)
	}
	return j, nil
}

func (s *PostgresStore) Update(ctx context.Context, j *Job) error {
	query := `
		UPDATE laser_jobs SET
			status = $2, current_operation = $3, progress_pct = $4,
			retry_count = $5, max_retries = $6, error_code = $7, error_message = $8,
			started_at = $9, completed_at = $10, actual_time_sec = $11
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		j.ID, j.Status, j.CurrentOperation, j.ProgressPct,
		j.RetryCount, j.MaxRetries, j.ErrorCode, j.ErrorMessage,
		j.StartedAt, j.CompletedAt, j.ActualTimeSec,
	)
	if err != nil {
		return apperrors.Internal("jobstore.update", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Internal("jobstore.update", err)
	}
	if rows == 0 {
		return apperrors.NotFound("job", j.ID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM laser_jobs ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Internal("jobstore.list", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Internal("jobstore.list", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("jobstore.list", err)
	}
	return jobs, nil
}

func (s *PostgresStore) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var started, completed sql.NullTime
	err := row.Scan(
		&j.ID, &j.UserID, &j.MachineID, &j.Name, &j.ProductType, &j.Material, &j.ThicknessMm,
		&j.Artifacts.CutURL, &j.Artifacts.EngraveURL, &j.Artifacts.ScoreURL, &j.Artifacts.CombinedURL,
		&j.WidthMm, &j.HeightMm, &j.SpeedMmSec, &j.PowerPct, &j.Passes, &j.KerfMm,
		&j.Priority, &j.Status, &j.CurrentOperation, &j.ProgressPct,
		&j.SafetyValidated, pq.Array(&j.SafetyWarnings),
		&j.RetryCount, &j.MaxRetries, &j.ErrorCode, &j.ErrorMessage,
		&j.CreatedAt, &started, &completed, &j.EstimatedTimeSec, &j.ActualTimeSec,
		&j.MachineCost, &j.MaterialCost, &j.TotalCost, &j.BatchID, &j.SourceArtifactID,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// Schema returns the DDL for the job table, applied by the service at
// startup when Postgres is configured.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS laser_jobs (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL DEFAULT '',
			machine_id         TEXT NOT NULL,
			name               TEXT NOT NULL,
			product_type       TEXT NOT NULL DEFAULT '',
			material           TEXT NOT NULL DEFAULT '',
			thickness_mm       DOUBLE PRECISION NOT NULL DEFAULT 0,
			cut_url            TEXT NOT NULL DEFAULT '',
			engrave_url        TEXT NOT NULL DEFAULT '',
			score_url          TEXT NOT NULL DEFAULT '',
			combined_url       TEXT NOT NULL DEFAULT '',
			width_mm           DOUBLE PRECISION NOT NULL DEFAULT 0,
			height_mm          DOUBLE PRECISION NOT NULL DEFAULT 0,
			speed_mm_sec       DOUBLE PRECISION NOT NULL DEFAULT 0,
			power_pct          DOUBLE PRECISION NOT NULL DEFAULT 0,
			passes             INTEGER NOT NULL DEFAULT 1,
			kerf_mm            DOUBLE PRECISION NOT NULL DEFAULT 0,
			priority           TEXT NOT NULL DEFAULT 'normal',
			status             TEXT NOT NULL,
			current_operation  TEXT NOT NULL DEFAULT '',
			progress_pct       DOUBLE PRECISION NOT NULL DEFAULT 0,
			safety_validated   BOOLEAN NOT NULL,
			safety_warnings    TEXT[] NOT NULL DEFAULT '{}',
			retry_count        INTEGER NOT NULL DEFAULT 0,
			max_retries        INTEGER NOT NULL,
			error_code         TEXT NOT NULL DEFAULT '',
			error_message      TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL,
			started_at         TIMESTAMPTZ,
			completed_at       TIMESTAMPTZ,
			estimated_time_sec INTEGER NOT NULL DEFAULT 0,
			actual_time_sec    INTEGER NOT NULL DEFAULT 0,
			machine_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
			material_cost      DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
			batch_id           TEXT NOT NULL DEFAULT '',
			source_artifact_id TEXT NOT NULL DEFAULT ''
		)`
}

var _ Store = (*PostgresStore)(nil)
