package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"instahelp/internal/directory"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

// Postgres reads the users table owned by the account service.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectAccount = `
	SELECT id, email, role, email_verified, clinician_verified, COALESCE(license_number, '')
	FROM users
`

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*directory.Account, error) {
	row := s.db.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, uuid.UUID(userID))
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

func (s *Postgres) ListVerifiedClinicians(ctx context.Context) ([]*directory.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+`
		WHERE role = 'clinician' AND email_verified AND clinician_verified
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("list clinicians: %w", err)
	}
	defer rows.Close()

	var out []*directory.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clinician: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clinicians: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*directory.Account, error) {
	var (
		rawID uuid.UUID
		role  string
		acct  directory.Account
	)
	if err := row.Scan(&rawID, &acct.Email, &role, &acct.EmailVerified, &acct.ClinicianVerified, &acct.LicenseNumber); err != nil {
		return nil, err
	}
	acct.ID = id.UserID(rawID)
	acct.Role = id.Role(role)
	return &acct, nil
}
