package ledger

import (
	"context"
	"errors"
	"fmt"
)

// AccountTx is the minimal transactional surface account resolution needs.
// It is satisfied by every module repository that posts inside its own scope.
type AccountTx interface {
	GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error)
	InsertAccount(ctx context.Context, account Account) (Account, error)
}

// GetOrCreateAccount returns the org's account for code, creating it with a
// zero balance when absent. It must run inside the caller's transactional
// scope so a concurrent create surfaces as ErrAccountConflict instead of a
// duplicate row; one re-fetch absorbs the common race.
func GetOrCreateAccount(ctx context.Context, tx AccountTx, orgID int64, code, name string, typ AccountType) (Account, error) {
	if orgID == 0 || code == "" {
		return Account{}, fmt.Errorf("%w: org and code required", ErrValidation)
	}
	if !typ.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", ErrValidation, typ)
	}
	account, err := tx.GetAccountByCode(ctx, orgID, code)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	created, err := tx.InsertAccount(ctx, Account{OrgID: orgID, Code: code, Name: name, Type: typ})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrAccountConflict) {
		return Account{}, err
	}
	account, err = tx.GetAccountByCode(ctx, orgID, code)
	if err != nil {
		return Account{}, fmt.Errorf("%w: account %s vanished after conflict", ErrValidation, code)
	}
	return account, nil
}
