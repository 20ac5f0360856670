package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"instahelp/internal/captoken/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/pgerr"
	"instahelp/pkg/platform/sentinel"
	txcontext "instahelp/pkg/platform/tx"
)

// Postgres persists tokens in capability_tokens. The partial unique index
// idx_capability_tokens_one_active (patient_id WHERE revoked_at IS NULL) is what
// guarantees a single active token across processes.
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

func (s *Postgres) Create(ctx context.Context, t *models.Token) error {
	query := `
		INSERT INTO capability_tokens (id, patient_id, token, version, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(t.ID),
		uuid.UUID(t.PatientID),
		t.Token,
		t.Version,
		t.CreatedAt,
		t.ExpiresAt,
	)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert capability token: %w", err)
	}
	return nil
}

const tokenColumns = `id, patient_id, token, version, created_at, revoked_at, last_accessed_at, expires_at`

func (s *Postgres) FindByToken(ctx context.Context, token string) (*models.Token, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM capability_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	return scanToken(row)
}

func (s *Postgres) FindActiveByPatient(ctx context.Context, patientID id.PatientID) (*models.Token, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM capability_tokens
		WHERE patient_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, uuid.UUID(patientID))
	return scanToken(row)
}

func (s *Postgres) LatestVersion(ctx context.Context, patientID id.PatientID) (int, error) {
	var v int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM capability_tokens WHERE patient_id = $1
	`, uuid.UUID(patientID)).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read latest token version: %w", err)
	}
	return v, nil
}

// Revoke sets revoked_at once; later calls keep the first timestamp.
func (s *Postgres) Revoke(ctx context.Context, tokenID id.TokenID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE capability_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, uuid.UUID(tokenID), at)
	if err != nil {
		return fmt.Errorf("revoke capability token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke capability token: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) TouchLastAccessed(ctx context.Context, tokenID id.TokenID, at time.Time) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE capability_tokens SET last_accessed_at = $2 WHERE id = $1
	`, uuid.UUID(tokenID), at)
	if err != nil {
		return fmt.Errorf("touch capability token: %w", err)
	}
	return nil
}

func (s *Postgres) ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.Token, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM capability_tokens
		WHERE patient_id = $1
		ORDER BY version DESC
	`, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("list capability tokens: %w", err)
	}
	defer rows.Close()

	var out []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capability tokens: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (*models.Token, error) {
	var (
		t         models.Token
		tokenID   uuid.UUID
		patientID uuid.UUID
		revoked   sql.NullTime
		accessed  sql.NullTime
		expires   sql.NullTime
	)
	err := row.Scan(&tokenID, &patientID, &t.Token, &t.Version, &t.CreatedAt, &revoked, &accessed, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan capability token: %w", err)
	}
	t.ID = id.TokenID(tokenID)
	t.PatientID = id.PatientID(patientID)
	t.RevokedAt = nullTime(revoked)
	t.LastAccessedAt = nullTime(accessed)
	t.ExpiresAt = nullTime(expires)
	return &t, nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
