package machine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"laserops/internal/apperrors"
)

// PostgresStore persists machines in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed machine store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const machineColumns = `
	id, name, family, connection_type, address, port,
	bed_width_mm, bed_height_mm, max_power_w, max_speed_mm_sec, accel_mm_sec2,
	hourly_rate, connection_status, firmware_version, last_seen_at, last_job_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, m *Machine) error {
	query := `
		INSERT INTO laser_machines (` + machineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Family, m.ConnectionType, m.Address, m.Port,
		m.BedWidthMm, m.BedHeightMm, m.MaxPowerW, m.MaxSpeedMmSec, m.AccelMmSec2,
		m.HourlyRate, m.ConnectionStatus, nullString(m.FirmwareVersion), m.LastSeenAt, m.LastJobAt, m.CreatedAt,
	)
	if err != nil {
		return apperrors.Internal("machinestore.create", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM laser_machines WHERE id = $1`
	m, err := scanMachine(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("machine", id)
	}
	if err != nil {
		return nil, apperrors.Internal("machinestore.get", err)
	}
	return m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *Machine) error {
	query := `
		UPDATE laser_machines SET
			name = $2, family = $3, connection_type = $4, address = $5, port = $6,
			bed_width_mm = $7, bed_height_mm = $8, max_power_w = $9,
			max_speed_mm_sec = $10, accel_mm_sec2 = $11, hourly_rate = $12,
			connection_status = $13, firmware_version = $14,
			last_seen_at = $15, last_job_at = $16
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Family, m.ConnectionType, m.Address, m.Port,
		m.BedWidthMm, m.BedHeightMm, m.MaxPowerW, m.MaxSpeedMmSec, m.AccelMmSec2,
		m.HourlyRate, m.ConnectionStatus, nullString(m.FirmwareVersion), m.LastSeenAt, m.LastJobAt,
	)
	if err != nil {
		return apperrors.Internal("machinestore.update", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Internal("machinestore.update", err)
	}
	if rows == 0 {
		return apperrors.NotFound("machine", m.ID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM laser_machines ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Internal("machinestore.list", err)
	}
	defer rows.Close()

	var machines []*Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, apperrors.Internal("machinestore.list", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("machinestore.list", err)
	}
	return machines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMachine(row rowScanner) (*Machine, error) {
	var m Machine
	var firmware sql.NullString
	var lastSeen, lastJob sql.NullTime
	err := row.Scan(
		&m.ID, &m.Name, &m.Family, &m.ConnectionType, &m.Address, &m.Port,
		&m.BedWidthMm, &m.BedHeightMm, &m.MaxPowerW, &m.MaxSpeedMmSec, &m.AccelMmSec2,
		&m.HourlyRate, &m.ConnectionStatus, &firmware, &lastSeen, &lastJob, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if firmware.Valid {
		m.FirmwareVersion = firmware.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		m.LastSeenAt = &t
	}
	if lastJob.Valid {
		t := lastJob.Time
		m.LastJobAt = &t
	}
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Schema returns the DDL for the machine table, applied by the service at
// startup when Postgres is configured.
func Schema() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS laser_machines (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			family            TEXT NOT NULL,
			connection_type   TEXT NOT NULL,
			address           TEXT NOT NULL DEFAULT '',
			port              INTEGER NOT NULL DEFAULT 0,
			bed_width_mm      DOUBLE PRECISION NOT NULL DEFAULT 0,
			bed_height_mm     DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_power_w       DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_speed_mm_sec  DOUBLE PRECISION NOT NULL DEFAULT 0,
			accel_mm_sec2     DOUBLE PRECISION NOT NULL DEFAULT 0,
			hourly_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
			connection_status TEXT NOT NULL DEFAULT '%s',
			firmware_version  TEXT,
			last_seen_at      TIMESTAMPTZ,
			last_job_at       TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL
		)`, StatusOffline)
}

var _ Store = (*PostgresStore)(nil)
