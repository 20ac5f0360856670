package directory

import (
	"context"
	"errors"

	id "instahelp/pkg/domain"
	dErrors "instahelp/pkg/domain-errors"
	"instahelp/pkg/platform/sentinel"
)

// Store reads accounts. Implementations return sentinel.ErrNotFound for
// unknown IDs.
type Store interface {
	FindByID(ctx context.Context, userID id.UserID) (*Account, error)
	ListVerifiedClinicians(ctx context.Context) ([]*Account, error)
}

// Directory answers identity questions for the governance and read paths.
type Directory struct {
	store Store
}

func New(store Store) *Directory {
	return &Directory{store: store}
}

// Get returns the account or CodeNotFound.
func (d *Directory) Get(ctx context.Context, userID id.UserID) (*Account, error) {
	acct, err := d.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return acct, nil
}

// IsVerifiedClinician is false for unknown accounts rather than an error.
func (d *Directory) IsVerifiedClinician(ctx context.Context, userID id.UserID) (bool, error) {
	acct, err := d.Get(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return acct.IsVerifiedClinician(), nil
}

// ContactFor returns the address notifications for userID go to.
func (d *Directory) ContactFor(ctx context.Context, userID id.UserID) (string, error) {
	acct, err := d.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if acct.Email == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "account has no contact address")
	}
	return acct.Email, nil
}

// ListVerifiedClinicians returns every clinician eligible to vote.
func (d *Directory) ListVerifiedClinicians(ctx context.Context) ([]*Account, error) {
	accts, err := d.store.ListVerifiedClinicians(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list clinicians")
	}
	return accts, nil
}
