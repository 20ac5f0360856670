package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"instahelp/internal/device/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/pgerr"
	"instahelp/pkg/platform/sentinel"
	txcontext "instahelp/pkg/platform/tx"
)

// Postgres persists device_registrations and vitals.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO device_registrations (device_id, patient_id, secret_hash, registered_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		string(reg.DeviceID),
		uuid.UUID(reg.PatientID),
		reg.SecretHash,
		reg.RegisteredAt,
	)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert device registration: %w", err)
	}
	return nil
}

func (s *Postgres) FindRegistration(ctx context.Context, deviceID id.DeviceID) (*models.Registration, error) {
	query := `
		SELECT device_id, patient_id, secret_hash, registered_at, last_seen_at
		FROM device_registrations
		WHERE device_id = $1
	`
	var (
		reg       models.Registration
		rawDevice string
		patientID uuid.UUID
		lastSeen  sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, string(deviceID)).Scan(
		&rawDevice, &patientID, &reg.SecretHash, &reg.RegisteredAt, &lastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find device registration: %w", err)
	}
	reg.DeviceID = id.DeviceID(rawDevice)
	reg.PatientID = id.PatientID(patientID)
	if lastSeen.Valid {
		t := lastSeen.Time
		reg.LastSeenAt = &t
	}
	return &reg, nil
}

func (s *Postgres) TouchLastSeen(ctx context.Context, deviceID id.DeviceID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE device_registrations SET last_seen_at = $2 WHERE device_id = $1`,
		string(deviceID), at,
	)
	if err != nil {
		return fmt.Errorf("touch device last seen: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) InsertVitals(ctx context.Context, v *models.Vitals) error {
	extra, err := json.Marshal(v.AdditionalData)
	if err != nil {
		return fmt.Errorf("marshal vitals additional data: %w", err)
	}
	query := `
		INSERT INTO vitals (id, patient_id, device_id, measured_at, heart_rate, temperature, additional_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(v.ID),
		uuid.UUID(v.PatientID),
		string(v.DeviceID),
		v.Timestamp,
		v.HeartRate,
		v.Temperature,
		extra,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vitals: %w", err)
	}
	return nil
}

func (s *Postgres) ListVitals(ctx context.Context, patientID id.PatientID, limit int) ([]*models.Vitals, error) {
	query := `
		SELECT id, patient_id, device_id, measured_at, heart_rate, temperature, additional_data, created_at
		FROM vitals
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(patientID), limit)
	if err != nil {
		return nil, fmt.Errorf("query vitals: %w", err)
	}
	defer rows.Close()

	var out []*models.Vitals
	for rows.Next() {
		var (
			v          models.Vitals
			rowID, pid uuid.UUID
			device     string
			hr, temp   sql.NullFloat64
			extra      []byte
		)
		if err := rows.Scan(&rowID, &pid, &device, &v.Timestamp, &hr, &temp, &extra, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vitals: %w", err)
		}
		v.ID = id.VitalsID(rowID)
		v.PatientID = id.PatientID(pid)
		v.DeviceID = id.DeviceID(device)
		if hr.Valid {
			v.HeartRate = &hr.Float64
		}
		if temp.Valid {
			v.Temperature = &temp.Float64
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &v.AdditionalData); err != nil {
				return nil, fmt.Errorf("decode vitals additional data: %w", err)
			}
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vitals: %w", err)
	}
	return out, nil
}
