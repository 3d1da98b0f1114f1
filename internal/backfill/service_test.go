package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/posting"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryBackfillRepo struct {
	nextAccountID int64
	accounts      map[string]ledger.Account
	lines         []ledger.JournalLine
	invoices      []posting.Invoice
	purchases     []posting.Purchase
	payments      []posting.Payment
	adjustments   []posting.StockAdjustment
}

func newMemoryBackfillRepo() *memoryBackfillRepo {
	return &memoryBackfillRepo{accounts: map[string]ledger.Account{}}
}

func (r *memoryBackfillRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryBackfillTx{repo: r})
}

func (r *memoryBackfillRepo) hasLines(refType ledger.RefType, refID uuid.UUID) bool {
	for _, line := range r.lines {
		if line.RefType == refType && line.RefID == refID {
			return true
		}
	}
	return false
}

func (r *memoryBackfillRepo) ListInvoicesWithoutLines(_ context.Context, orgID int64) ([]posting.Invoice, error) {
	var out []posting.Invoice
	for _, inv := range r.invoices {
		if inv.OrgID == orgID && inv.Status == posting.StatusPosted && !r.hasLines(ledger.RefTypeInvoice, inv.ID) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryBackfillRepo) ListPurchasesWithoutLines(_ context.Context, orgID int64) ([]posting.Purchase, error) {
	var out []posting.Purchase
	for _, p := range r.purchases {
		if p.OrgID == orgID && p.Status == posting.StatusPosted && !r.hasLines(ledger.RefTypePurchase, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryBackfillRepo) ListPaymentsWithoutLines(_ context.Context, orgID int64) ([]posting.Payment, error) {
	var out []posting.Payment
	for _, p := range r.payments {
		if p.OrgID == orgID && p.Status == posting.StatusPosted && !r.hasLines(ledger.RefTypePayment, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryBackfillRepo) ListAdjustmentsWithoutLines(_ context.Context, orgID int64) ([]posting.StockAdjustment, error) {
	var out []posting.StockAdjustment
	for _, adj := range r.adjustments {
		if adj.OrgID == orgID && adj.Status == posting.StatusPosted && !r.hasLines(ledger.RefTypeAdjustment, adj.ID) {
			out = append(out, adj)
		}
	}
	return out, nil
}

type memoryBackfillTx struct {
	repo *memoryBackfillRepo
}

func (t *memoryBackfillTx) GetAccountByCode(_ context.Context, orgID int64, code string) (ledger.Account, error) {
	account, ok := t.repo.accounts[accountTestKey(orgID, code)]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return account, nil
}

func (t *memoryBackfillTx) InsertAccount(_ context.Context, account ledger.Account) (ledger.Account, error) {
	t.repo.nextAccountID++
	account.ID = t.repo.nextAccountID
	t.repo.accounts[accountTestKey(account.OrgID, account.Code)] = account
	return account, nil
}

func (t *memoryBackfillTx) InsertLines(_ context.Context, lines []ledger.JournalLine) error {
	t.repo.lines = append(t.repo.lines, lines...)
	return nil
}

func accountTestKey(orgID int64, code string) string {
	return fmt.Sprintf("%d:%s", orgID, code)
}

func newBackfillService(repo *memoryBackfillRepo) *Service {
	svc := NewService(slog.New(slog.DiscardHandler), repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) })
	return svc
}

func docDate() time.Time {
	return time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
}

func TestRunSynthesizesMissingLines(t *testing.T) {
	repo := newMemoryBackfillRepo()
	repo.invoices = append(repo.invoices, posting.Invoice{
		ID: uuid.New(), OrgID: 1, BranchID: 2, CustomerID: 7, Number: "INV-1",
		GrandTotal: 1000, TaxAmount: 180, Status: posting.StatusPosted, Date: docDate(),
	})
	repo.purchases = append(repo.purchases, posting.Purchase{
		ID: uuid.New(), OrgID: 1, BranchID: 2, SupplierID: 9, Number: "PO-1",
		GrandTotal: 500, Status: posting.StatusPosted, Date: docDate(),
	})
	customer := int64(7)
	repo.payments = append(repo.payments, posting.Payment{
		ID: uuid.New(), OrgID: 1, BranchID: 2, Direction: posting.PaymentInflow,
		CustomerID: &customer, Amount: 300, Via: "CASH", Status: posting.StatusPosted, Date: docDate(),
	})
	svc := newBackfillService(repo)

	summary, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Invoices)
	require.Equal(t, 1, summary.Purchases)
	require.Equal(t, 1, summary.Payments)
	require.Zero(t, summary.Failed)
	require.Len(t, repo.lines, 7) // 3 + 2 + 2

	// every synthesized posting set nets to zero
	byRef := map[uuid.UUID][]ledger.JournalLine{}
	for _, line := range repo.lines {
		byRef[line.RefID] = append(byRef[line.RefID], line)
	}
	for refID, lines := range byRef {
		var debit, credit float64
		for _, line := range lines {
			debit += line.Debit
			credit += line.Credit
		}
		require.InDeltaf(t, debit, credit, shared.Epsilon, "reference %s", refID)
	}
}

func TestRunTwiceWritesNoDuplicates(t *testing.T) {
	repo := newMemoryBackfillRepo()
	repo.invoices = append(repo.invoices, posting.Invoice{
		ID: uuid.New(), OrgID: 1, BranchID: 2, CustomerID: 7, Number: "INV-1",
		GrandTotal: 1000, TaxAmount: 180, Status: posting.StatusPosted, Date: docDate(),
	})
	svc := newBackfillService(repo)

	first, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, first.Total())
	count := len(repo.lines)

	second, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, second.Total())
	require.Len(t, repo.lines, count)
}

func TestRunSkipsZeroCostAdjustments(t *testing.T) {
	repo := newMemoryBackfillRepo()
	repo.adjustments = append(repo.adjustments,
		posting.StockAdjustment{
			ID: uuid.New(), OrgID: 1, BranchID: 2, ProductID: 30,
			Direction: posting.AdjustmentSubtract, Qty: 2, CostValue: 0,
			Status: posting.StatusPosted, Date: docDate(),
		},
		posting.StockAdjustment{
			ID: uuid.New(), OrgID: 1, BranchID: 2, ProductID: 31,
			Direction: posting.AdjustmentAdd, Qty: 4, UnitCost: 25, CostValue: 100,
			Status: posting.StatusPosted, Date: docDate(),
		},
	)
	svc := newBackfillService(repo)

	summary, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Adjustments)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, repo.lines, 2)
}

func TestRunContinuesPastFailures(t *testing.T) {
	repo := newMemoryBackfillRepo()
	repo.invoices = append(repo.invoices,
		posting.Invoice{
			ID: uuid.New(), OrgID: 1, BranchID: 2, CustomerID: 7, Number: "BAD",
			GrandTotal: 100, TaxAmount: 100, // tax == gross is invalid
			Status: posting.StatusPosted, Date: docDate(),
		},
		posting.Invoice{
			ID: uuid.New(), OrgID: 1, BranchID: 2, CustomerID: 7, Number: "GOOD",
			GrandTotal: 200, Status: posting.StatusPosted, Date: docDate(),
		},
	)
	svc := newBackfillService(repo)

	summary, err := svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Invoices)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, repo.lines, 2)
}
