package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryAccountTx struct {
	byCode  map[string]Account
	nextID  int64
	inserts int
	// conflictOnce simulates a concurrent create winning the race.
	conflictOnce bool
}

func newMemoryAccountTx() *memoryAccountTx {
	return &memoryAccountTx{byCode: make(map[string]Account)}
}

func (tx *memoryAccountTx) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	if acc, ok := tx.byCode[key(orgID, code)]; ok {
		return acc, nil
	}
	return Account{}, ErrNotFound
}

func (tx *memoryAccountTx) InsertAccount(ctx context.Context, account Account) (Account, error) {
	tx.inserts++
	if tx.conflictOnce {
		tx.conflictOnce = false
		account.ID = 999
		tx.byCode[key(account.OrgID, account.Code)] = account
		return Account{}, ErrAccountConflict
	}
	tx.nextID++
	account.ID = tx.nextID
	tx.byCode[key(account.OrgID, account.Code)] = account
	return account, nil
}

func key(orgID int64, code string) string {
	return fmt.Sprintf("%d:%s", orgID, code)
}

func TestGetOrCreateAccountCreatesOnce(t *testing.T) {
	tx := newMemoryAccountTx()
	ctx := context.Background()

	created, err := GetOrCreateAccount(ctx, tx, 7, "1100", "Accounts Receivable", AccountTypeAsset)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Zero(t, created.CachedBalance)

	again, err := GetOrCreateAccount(ctx, tx, 7, "1100", "Accounts Receivable", AccountTypeAsset)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
	require.Equal(t, 1, tx.inserts)
}

func TestGetOrCreateAccountRecoversFromConflict(t *testing.T) {
	tx := newMemoryAccountTx()
	tx.conflictOnce = true
	ctx := context.Background()

	acc, err := GetOrCreateAccount(ctx, tx, 7, "2100", "Accounts Payable", AccountTypeLiability)
	require.NoError(t, err)
	require.EqualValues(t, 999, acc.ID)
}

func TestGetOrCreateAccountRejectsBadInput(t *testing.T) {
	tx := newMemoryAccountTx()
	ctx := context.Background()

	_, err := GetOrCreateAccount(ctx, tx, 0, "1100", "AR", AccountTypeAsset)
	require.ErrorIs(t, err, ErrValidation)

	_, err = GetOrCreateAccount(ctx, tx, 7, "1100", "AR", AccountType("WEIRD"))
	require.ErrorIs(t, err, ErrValidation)
}
