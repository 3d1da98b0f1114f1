package backfill

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/posting"
)

// accountCache memoizes account resolution for the lifetime of one run.
// It is created per run and never shared, so two concurrent runs cannot
// contaminate each other's lookups.
type accountCache struct {
	entries map[string]ledger.Account
}

func newAccountCache() *accountCache {
	return &accountCache{entries: map[string]ledger.Account{}}
}

func (c *accountCache) resolve(ctx context.Context, tx ledger.AccountTx, orgID int64, code string) (ledger.Account, error) {
	key := fmt.Sprintf("%d:%s", orgID, code)
	if account, ok := c.entries[key]; ok {
		return account, nil
	}
	account, err := posting.RequireAccount(ctx, tx, orgID, code)
	if err != nil {
		return ledger.Account{}, err
	}
	c.entries[key] = account
	return account, nil
}
