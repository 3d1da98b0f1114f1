// Package backfill synthesizes missing journal lines for documents created
// before ledger integration. It writes lines only: stock and counterparty
// balances already reflect the old documents, so operational side effects
// must not run again.
package backfill

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/posting"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository is the write surface of one document's backfill.
type TxRepository interface {
	ledger.AccountTx
	InsertLines(ctx context.Context, lines []ledger.JournalLine) error
}

// RepositoryPort lists documents lacking ledger lines and opens write scopes.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInvoicesWithoutLines(ctx context.Context, orgID int64) ([]posting.Invoice, error)
	ListPurchasesWithoutLines(ctx context.Context, orgID int64) ([]posting.Purchase, error)
	ListPaymentsWithoutLines(ctx context.Context, orgID int64) ([]posting.Payment, error)
	ListAdjustmentsWithoutLines(ctx context.Context, orgID int64) ([]posting.StockAdjustment, error)
}

// Summary counts one backfill run's outcome.
type Summary struct {
	Invoices    int `json:"invoices"`
	Purchases   int `json:"purchases"`
	Payments    int `json:"payments"`
	Adjustments int `json:"adjustments"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// Total is the number of documents that received lines.
func (s Summary) Total() int {
	return s.Invoices + s.Purchases + s.Payments + s.Adjustments
}

// Service runs the backfill. Selection is by line existence per reference,
// so a second run finds nothing to do and writes nothing.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	recon  *recon.Service
	now    func() time.Time
}

// NewService constructs the backfill tool.
func NewService(logger *slog.Logger, repo RepositoryPort, reconSvc *recon.Service) *Service {
	return &Service{logger: logger, repo: repo, recon: reconSvc, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Run backfills one organization. Each document commits independently and a
// failure is logged and skipped, never aborting the sweep.
func (s *Service) Run(ctx context.Context, orgID int64) (Summary, error) {
	var summary Summary
	accounts := newAccountCache()
	scope := shared.Scope{OrgID: orgID}

	invoices, err := s.repo.ListInvoicesWithoutLines(ctx, orgID)
	if err != nil {
		return summary, err
	}
	for _, inv := range invoices {
		if err := s.backfillInvoice(ctx, scope, accounts, inv); err != nil {
			s.fail(&summary, "invoice", inv.ID.String(), err)
			continue
		}
		summary.Invoices++
	}

	purchases, err := s.repo.ListPurchasesWithoutLines(ctx, orgID)
	if err != nil {
		return summary, err
	}
	for _, p := range purchases {
		if err := s.backfillPurchase(ctx, scope, accounts, p); err != nil {
			s.fail(&summary, "purchase", p.ID.String(), err)
			continue
		}
		summary.Purchases++
	}

	payments, err := s.repo.ListPaymentsWithoutLines(ctx, orgID)
	if err != nil {
		return summary, err
	}
	for _, p := range payments {
		if err := s.backfillPayment(ctx, scope, accounts, p); err != nil {
			s.fail(&summary, "payment", p.ID.String(), err)
			continue
		}
		summary.Payments++
	}

	adjustments, err := s.repo.ListAdjustmentsWithoutLines(ctx, orgID)
	if err != nil {
		return summary, err
	}
	for _, adj := range adjustments {
		posted, err := s.backfillAdjustment(ctx, scope, accounts, adj)
		if err != nil {
			s.fail(&summary, "adjustment", adj.ID.String(), err)
			continue
		}
		if !posted {
			summary.Skipped++
			continue
		}
		summary.Adjustments++
	}

	s.logger.Info("backfill complete",
		slog.Int64("org_id", orgID),
		slog.Int("documents", summary.Total()),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// Verify re-derives totals for the organization and reports discrepancies
// without correcting anything.
func (s *Service) Verify(ctx context.Context, orgID int64) (recon.Report, error) {
	return s.recon.ScanOrg(ctx, orgID)
}

func (s *Service) fail(summary *Summary, kind, id string, err error) {
	summary.Failed++
	s.logger.Error("backfill document failed",
		slog.String("kind", kind), slog.String("id", id), slog.Any("error", err))
}

func (s *Service) backfillInvoice(ctx context.Context, scope shared.Scope, accounts *accountCache, inv posting.Invoice) error {
	scope.BranchID = inv.BranchID
	scope.ActorID = inv.CreatedBy
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := posting.InvoiceAccounts{}
		var err error
		if resolved.Receivable, err = accounts.resolve(ctx, tx, inv.OrgID, posting.CodeAccountsReceivable); err != nil {
			return err
		}
		if resolved.Sales, err = accounts.resolve(ctx, tx, inv.OrgID, posting.CodeSales); err != nil {
			return err
		}
		if inv.TaxAmount > 0 {
			if resolved.TaxPayable, err = accounts.resolve(ctx, tx, inv.OrgID, posting.CodeTaxPayable); err != nil {
				return err
			}
		}
		lines, err := posting.InvoiceLines(resolved, inv)
		if err != nil {
			return err
		}
		if err := ledger.ValidateBatch(lines); err != nil {
			return err
		}
		return tx.InsertLines(ctx, ledger.BuildLines(scope, ledger.RefTypeInvoice, inv.ID, inv.Date, lines))
	})
}

func (s *Service) backfillPurchase(ctx context.Context, scope shared.Scope, accounts *accountCache, p posting.Purchase) error {
	scope.BranchID = p.BranchID
	scope.ActorID = p.CreatedBy
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := posting.PurchaseAccounts{}
		var err error
		if resolved.InventoryAsset, err = accounts.resolve(ctx, tx, p.OrgID, posting.CodeInventoryAsset); err != nil {
			return err
		}
		if resolved.Payable, err = accounts.resolve(ctx, tx, p.OrgID, posting.CodeAccountsPayable); err != nil {
			return err
		}
		lines, err := posting.PurchaseLines(resolved, p)
		if err != nil {
			return err
		}
		if err := ledger.ValidateBatch(lines); err != nil {
			return err
		}
		return tx.InsertLines(ctx, ledger.BuildLines(scope, ledger.RefTypePurchase, p.ID, p.Date, lines))
	})
}

func (s *Service) backfillPayment(ctx context.Context, scope shared.Scope, accounts *accountCache, p posting.Payment) error {
	scope.BranchID = p.BranchID
	scope.ActorID = p.CreatedBy
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := posting.PaymentAccounts{}
		var err error
		assetCode := posting.CodeCash
		if p.Via == "BANK" {
			assetCode = posting.CodeBank
		}
		if resolved.Asset, err = accounts.resolve(ctx, tx, p.OrgID, assetCode); err != nil {
			return err
		}
		counterpartyCode := posting.CodeAccountsReceivable
		if p.Direction == posting.PaymentOutflow {
			counterpartyCode = posting.CodeAccountsPayable
		}
		if resolved.Counterparty, err = accounts.resolve(ctx, tx, p.OrgID, counterpartyCode); err != nil {
			return err
		}
		lines, err := posting.PaymentLines(resolved, p)
		if err != nil {
			return err
		}
		if err := ledger.ValidateBatch(lines); err != nil {
			return err
		}
		return tx.InsertLines(ctx, ledger.BuildLines(scope, ledger.RefTypePayment, p.ID, p.Date, lines))
	})
}

// backfillAdjustment reports false when the adjustment carries no monetary
// value and therefore owns no lines.
func (s *Service) backfillAdjustment(ctx context.Context, scope shared.Scope, accounts *accountCache, adj posting.StockAdjustment) (bool, error) {
	if shared.Round2(adj.CostValue) == 0 {
		return false, nil
	}
	scope.BranchID = adj.BranchID
	scope.ActorID = adj.CreatedBy
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		resolved := posting.AdjustmentAccounts{}
		var err error
		if resolved.InventoryAsset, err = accounts.resolve(ctx, tx, adj.OrgID, posting.CodeInventoryAsset); err != nil {
			return err
		}
		if adj.Direction == posting.AdjustmentAdd {
			resolved.Gain, err = accounts.resolve(ctx, tx, adj.OrgID, posting.CodeInventoryGain)
		} else {
			resolved.Shrinkage, err = accounts.resolve(ctx, tx, adj.OrgID, posting.CodeInventoryShrinkage)
		}
		if err != nil {
			return err
		}
		lines, err := posting.AdjustmentLines(resolved, adj)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		if err := ledger.ValidateBatch(lines); err != nil {
			return err
		}
		return tx.InsertLines(ctx, ledger.BuildLines(scope, ledger.RefTypeAdjustment, adj.ID, adj.Date, lines))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
