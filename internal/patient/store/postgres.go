package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/pgerr"
	"instahelp/pkg/platform/sentinel"
	txcontext "instahelp/pkg/platform/tx"
)

// Postgres persists patients. last_vitals lives in its own column so device
// writes never race governed updates of public_view.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, p *models.Patient) error {
	public, err := json.Marshal(p.PublicView)
	if err != nil {
		return fmt.Errorf("marshal public view: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO patients (id, owner_id, public_view, private_ciphertext, private_wrapped_key, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(p.ID),
		uuid.UUID(p.OwnerID),
		public,
		p.Private.Ciphertext,
		p.Private.WrappedKey,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

const selectPatient = `
	SELECT id, owner_id, public_view, private_ciphertext, private_wrapped_key, last_vitals, version, created_at, updated_at
	FROM patients
`

func (s *Postgres) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	return s.findOne(ctx, selectPatient+` WHERE id = $1`, uuid.UUID(patientID))
}

func (s *Postgres) FindByOwner(ctx context.Context, ownerID id.UserID) (*models.Patient, error) {
	return s.findOne(ctx, selectPatient+` WHERE owner_id = $1`, uuid.UUID(ownerID))
}

func (s *Postgres) findOne(ctx context.Context, query string, arg any) (*models.Patient, error) {
	var (
		rawID, rawOwner uuid.UUID
		public          []byte
		lastVitals      []byte
		p               models.Patient
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, arg).Scan(
		&rawID, &rawOwner, &public, &p.Private.Ciphertext, &p.Private.WrappedKey,
		&lastVitals, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	p.ID = id.PatientID(rawID)
	p.OwnerID = id.UserID(rawOwner)
	if err := json.Unmarshal(public, &p.PublicView); err != nil {
		return nil, fmt.Errorf("decode public view: %w", err)
	}
	if len(lastVitals) > 0 {
		var lv models.LastVitals
		if err := json.Unmarshal(lastVitals, &lv); err != nil {
			return nil, fmt.Errorf("decode last vitals: %w", err)
		}
		p.LastVitals = &lv
	}
	return &p, nil
}

func (s *Postgres) Update(ctx context.Context, p *models.Patient, expectedVersion int) error {
	public, err := json.Marshal(p.PublicView)
	if err != nil {
		return fmt.Errorf("marshal public view: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE patients
		SET public_view = $2, private_ciphertext = $3, private_wrapped_key = $4,
		    version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $6
	`,
		uuid.UUID(p.ID),
		public,
		p.Private.Ciphertext,
		p.Private.WrappedKey,
		p.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, p.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) UpdateLastVitals(ctx context.Context, patientID id.PatientID, vitals models.LastVitals) error {
	payload, err := json.Marshal(vitals)
	if err != nil {
		return fmt.Errorf("marshal last vitals: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE patients SET last_vitals = $2 WHERE id = $1`, uuid.UUID(patientID), payload)
	if err != nil {
		return fmt.Errorf("update last vitals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last vitals: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
