package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"instahelp/internal/governance/models"
	patientmodels "instahelp/internal/patient/models"
	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/pgerr"
	"instahelp/pkg/platform/sentinel"
	txcontext "instahelp/pkg/platform/tx"
)

// Postgres persists pending_changes. Votes are JSONB arrays; every write is
// conditioned on the version column.
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

const selectColumns = `
	SELECT id, patient_id, initiated_by, initiated_role, change_type, field_path,
	       old_value, new_value, status, approvals, rejections, version,
	       created_at, updated_at, finalized_at
	FROM pending_changes
`

func (s *Postgres) Create(ctx context.Context, c *models.PendingChange) error {
	approvals, rejections, err := marshalVotes(c)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO pending_changes (
			id, patient_id, initiated_by, initiated_role, change_type, field_path,
			old_value, new_value, status, approvals, rejections, version,
			created_at, updated_at, finalized_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.PatientID),
		uuid.UUID(c.InitiatedBy),
		string(c.InitiatedRole),
		string(c.FieldPath.Target),
		string(c.FieldPath.Field),
		nullableJSON(c.OldValue),
		[]byte(c.NewValue),
		string(c.Status),
		approvals,
		rejections,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
		c.FinalizedAt,
	)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert pending change: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error) {
	return s.findOne(ctx, selectColumns+` WHERE id = $1`, changeID)
}

// FindForUpdate locks the row until the surrounding transaction ends. Outside
// a transaction it is a plain read.
func (s *Postgres) FindForUpdate(ctx context.Context, changeID id.ChangeID) (*models.PendingChange, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return s.FindByID(ctx, changeID)
	}
	return s.findOne(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, changeID)
}

func (s *Postgres) findOne(ctx context.Context, query string, changeID id.ChangeID) (*models.PendingChange, error) {
	c, err := scanChange(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(changeID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending change: %w", err)
	}
	return c, nil
}

func (s *Postgres) Update(ctx context.Context, c *models.PendingChange, expectedVersion int) error {
	approvals, rejections, err := marshalVotes(c)
	if err != nil {
		return err
	}
	query := `
		UPDATE pending_changes
		SET status = $2, approvals = $3, rejections = $4, updated_at = $5,
		    finalized_at = $6, version = version + 1
		WHERE id = $1 AND version = $7
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		string(c.Status),
		approvals,
		rejections,
		c.UpdatedAt,
		c.FinalizedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update pending change: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pending change: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, c.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) ListOpenByPatient(ctx context.Context, patientID id.PatientID) ([]*models.PendingChange, error) {
	return s.list(ctx, selectColumns+`
		WHERE patient_id = $1 AND status IN ('pending', 'approved')
		ORDER BY created_at DESC
	`, uuid.UUID(patientID))
}

func (s *Postgres) ListOpen(ctx context.Context) ([]*models.PendingChange, error) {
	return s.list(ctx, selectColumns+`
		WHERE status IN ('pending', 'approved')
		ORDER BY created_at DESC
	`)
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.PendingChange, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending changes: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PendingChange, 0)
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending changes: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (*models.PendingChange, error) {
	var (
		c                           models.PendingChange
		changeID, patientID, initBy uuid.UUID
		role, changeType, field     string
		status                      string
		oldValue, newValue          []byte
		approvals, rejections       []byte
		finalizedAt                 sql.NullTime
	)
	err := row.Scan(
		&changeID, &patientID, &initBy, &role, &changeType, &field,
		&oldValue, &newValue, &status, &approvals, &rejections, &c.Version,
		&c.CreatedAt, &c.UpdatedAt, &finalizedAt,
	)
	if err != nil {
		return nil, err
	}
	path, err := patientmodels.ParseFieldPath(field, changeType)
	if err != nil {
		return nil, fmt.Errorf("stored field path %q: %w", field, err)
	}
	c.ID = id.ChangeID(changeID)
	c.PatientID = id.PatientID(patientID)
	c.InitiatedBy = id.UserID(initBy)
	c.InitiatedRole = id.Role(role)
	c.FieldPath = path
	c.Status = models.Status(status)
	if len(oldValue) > 0 {
		c.OldValue = json.RawMessage(oldValue)
	}
	c.NewValue = json.RawMessage(newValue)
	if err := json.Unmarshal(approvals, &c.Approvals); err != nil {
		return nil, fmt.Errorf("decode approvals: %w", err)
	}
	if err := json.Unmarshal(rejections, &c.Rejections); err != nil {
		return nil, fmt.Errorf("decode rejections: %w", err)
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		c.FinalizedAt = &t
	}
	return &c, nil
}

func marshalVotes(c *models.PendingChange) (approvals, rejections []byte, err error) {
	approvals, err = json.Marshal(nonNil(c.Approvals))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal approvals: %w", err)
	}
	rejections, err = json.Marshal(nonNil(c.Rejections))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rejections: %w", err)
	}
	return approvals, rejections, nil
}

func nonNil(votes []models.Vote) []models.Vote {
	if votes == nil {
		return []models.Vote{}
	}
	return votes
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
