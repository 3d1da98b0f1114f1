package posting

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Well-known chart of accounts codes every organization posts against.
const (
	CodeCash               = "1000"
	CodeBank               = "1010"
	CodeAccountsReceivable = "1100"
	CodeInventoryAsset     = "1200"
	CodeAccountsPayable    = "2100"
	CodeTaxPayable         = "2200"
	CodeSales              = "4000"
	CodeInventoryGain      = "4900"
	CodeInventoryShrinkage = "5900"
)

type accountSpec struct {
	Name string
	Type ledger.AccountType
}

var accountCatalog = map[string]accountSpec{
	CodeCash:               {Name: "Cash", Type: ledger.AccountTypeAsset},
	CodeBank:               {Name: "Bank", Type: ledger.AccountTypeAsset},
	CodeAccountsReceivable: {Name: "Accounts Receivable", Type: ledger.AccountTypeAsset},
	CodeInventoryAsset:     {Name: "Inventory Asset", Type: ledger.AccountTypeAsset},
	CodeAccountsPayable:    {Name: "Accounts Payable", Type: ledger.AccountTypeLiability},
	CodeTaxPayable:         {Name: "Tax Payable", Type: ledger.AccountTypeLiability},
	CodeSales:              {Name: "Sales", Type: ledger.AccountTypeIncome},
	CodeInventoryGain:      {Name: "Inventory Gain", Type: ledger.AccountTypeIncome},
	CodeInventoryShrinkage: {Name: "Inventory Shrinkage", Type: ledger.AccountTypeExpense},
}

// RequireAccount resolves a catalog account inside the caller's transaction.
// Failure to resolve is fatal misconfiguration: the operation aborts rather
// than posting an unbalanced or partial set.
func RequireAccount(ctx context.Context, tx ledger.AccountTx, orgID int64, code string) (ledger.Account, error) {
	spec, ok := accountCatalog[code]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: code %s not in catalog", ledger.ErrCriticalAccountMissing, code)
	}
	account, err := ledger.GetOrCreateAccount(ctx, tx, orgID, code, spec.Name, spec.Type)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("%w: %s (%s): %v", ledger.ErrCriticalAccountMissing, code, spec.Name, err)
	}
	return account, nil
}

// paymentVia picks the asset account code for a payment channel.
func paymentVia(via string) string {
	if via == "BANK" {
		return CodeBank
	}
	return CodeCash
}
