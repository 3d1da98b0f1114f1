package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the account type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// RefType enumerates the business documents a posting can originate from.
type RefType string

const (
	RefTypeInvoice        RefType = "INVOICE"
	RefTypePurchase       RefType = "PURCHASE"
	RefTypePayment        RefType = "PAYMENT"
	RefTypeAdjustment     RefType = "ADJUSTMENT"
	RefTypePurchaseReturn RefType = "PURCHASE_RETURN"
	RefTypeManual         RefType = "MANUAL"
)

// Account models an organization-scoped chart of accounts node.
type Account struct {
	ID            int64
	OrgID         int64
	Code          string
	Name          string
	Type          AccountType
	IsGroup       bool
	CachedBalance float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JournalLine is one debit-or-credit posting against a single account.
// Lines are append-only: corrections are always new reversing lines.
type JournalLine struct {
	ID         int64
	OrgID      int64
	BranchID   *int64
	AccountID  int64
	CustomerID *int64
	SupplierID *int64
	Date       time.Time
	Debit      float64
	Credit     float64
	Memo       string
	RefType    RefType
	RefID      uuid.UUID
	CreatedBy  int64
	CreatedAt  time.Time
}

// LineInput describes a journal line awaiting persistence.
type LineInput struct {
	AccountID  int64
	BranchID   *int64
	CustomerID *int64
	SupplierID *int64
	Debit      float64
	Credit     float64
	Memo       string
}

var (
	// ErrInvariant indicates a line violates single-sidedness or rounding.
	ErrInvariant = errors.New("ledger: line must carry exactly one side, rounded to two decimals")
	// ErrUnbalanced indicates a posting set does not net to zero.
	ErrUnbalanced = errors.New("ledger: posting debits and credits must balance")
	// ErrValidation indicates malformed posting input.
	ErrValidation = errors.New("ledger: invalid posting input")
	// ErrNotFound indicates a missing ledger entity.
	ErrNotFound = errors.New("ledger: not found")
	// ErrAccountConflict indicates a concurrent create hit the per-org code
	// uniqueness constraint; callers retry by re-fetching.
	ErrAccountConflict = errors.New("ledger: account code conflict")
	// ErrCriticalAccountMissing indicates a required chart of accounts entry
	// is absent. Fatal misconfiguration: postings are never silently skipped.
	ErrCriticalAccountMissing = errors.New("ledger: required account missing")
)

// ValidateLine enforces the per-line invariant: exactly one of debit/credit
// is positive and both are rounded to two decimals.
func ValidateLine(line LineInput) error {
	if line.AccountID == 0 {
		return fmt.Errorf("%w: missing account", ErrValidation)
	}
	if line.Debit < 0 || line.Credit < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvariant)
	}
	if (line.Debit > 0) == (line.Credit > 0) {
		return ErrInvariant
	}
	if !shared.IsRounded2(line.Debit) || !shared.IsRounded2(line.Credit) {
		return ErrInvariant
	}
	return nil
}

// ValidateBatch checks every line and the zero-net invariant of the set.
func ValidateBatch(lines []LineInput) error {
	if len(lines) < 2 {
		return fmt.Errorf("%w: posting requires at least two lines", ErrValidation)
	}
	var debit, credit float64
	for idx, line := range lines {
		if err := ValidateLine(line); err != nil {
			return fmt.Errorf("line %d: %w", idx, err)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if !shared.AlmostEqual(debit, credit, shared.Epsilon) {
		return ErrUnbalanced
	}
	return nil
}
