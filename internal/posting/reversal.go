package posting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceUpdate carries the editable fields of an invoice.
type InvoiceUpdate struct {
	Number     string
	GrandTotal float64
	TaxAmount  float64
	Date       time.Time
	Items      []DocumentItem
}

// PurchaseUpdate carries the editable fields of a purchase.
type PurchaseUpdate struct {
	Number     string
	GrandTotal float64
	Date       time.Time
	Items      []DocumentItem
}

// EditInvoice reworks a posted invoice in place. Financially neutral edits
// only touch the document row; otherwise the original lines are deleted, the
// operational effects unwound, and the invoice is booked again with the new
// values. The reference ID never changes.
func (s *Service) EditInvoice(ctx context.Context, scope shared.Scope, id uuid.UUID, update InvoiceUpdate) (Invoice, error) {
	update.GrandTotal = shared.Round2(update.GrandTotal)
	update.TaxAmount = shared.Round2(update.TaxAmount)
	var out Invoice
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return ErrDocumentCancelled
		}
		if inv.FinanciallyEqual(update) {
			inv.Number = update.Number
			inv.Date = s.docDate(update.Date)
			out = inv
			return tx.UpdateInvoiceFinancials(ctx, inv)
		}
		if err := validateItems(update.Items); err != nil {
			return err
		}
		if err := s.unwindInvoice(ctx, tx, inv); err != nil {
			return err
		}
		if _, err := tx.DeleteLinesByReference(ctx, inv.OrgID, ledger.RefTypeInvoice, inv.ID); err != nil {
			return err
		}
		inv.Number = update.Number
		inv.GrandTotal = update.GrandTotal
		inv.TaxAmount = update.TaxAmount
		inv.Date = s.docDate(update.Date)
		inv.Items = update.Items
		if err := s.bookInvoice(ctx, tx, scope, inv); err != nil {
			return err
		}
		out = inv
		return tx.UpdateInvoiceFinancials(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.afterCommit(ctx, scope, "posting.invoice.edit", id.String(), map[string]any{"grand_total": out.GrandTotal})
	return out, nil
}

// CancelInvoice books the exact reversing posting set under the same
// reference and marks the document terminal. Nothing is deleted.
func (s *Service) CancelInvoice(ctx context.Context, scope shared.Scope, id uuid.UUID) error {
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusCancelled {
			return ErrDocumentCancelled
		}
		if err := s.unwindInvoice(ctx, tx, inv); err != nil {
			return err
		}
		accounts, err := s.invoiceAccounts(ctx, tx, inv.OrgID, inv.TaxAmount > 0)
		if err != nil {
			return err
		}
		lines, err := InvoiceLines(accounts, inv)
		if err != nil {
			return err
		}
		reversed := ReverseLines(lines)
		if err := ledger.ValidateBatch(reversed); err != nil {
			return err
		}
		rows := ledger.BuildLines(scope, ledger.RefTypeInvoice, inv.ID, s.now().UTC(), reversed)
		if err := tx.InsertLines(ctx, rows); err != nil {
			return err
		}
		return tx.UpdateInvoiceStatus(ctx, inv.OrgID, inv.ID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, scope, "posting.invoice.cancel", id.String(), nil)
	return nil
}

// unwindInvoice restores stock sold on the invoice and releases the
// customer's receivable balance.
func (s *Service) unwindInvoice(ctx context.Context, tx TxRepository, inv Invoice) error {
	for _, item := range inv.Items {
		balance, err := tx.GetStockForUpdate(ctx, inv.OrgID, inv.BranchID, item.ProductID)
		if err != nil {
			return err
		}
		cost := balance.AvgCost
		if cost <= 0 {
			cost = item.UnitCost
		}
		next, err := balance.Add(item.Qty, cost)
		if err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, next); err != nil {
			return err
		}
	}
	return tx.AdjustCustomerBalance(ctx, inv.OrgID, inv.CustomerID, -inv.GrandTotal)
}

// EditPurchase reworks a posted purchase. Reworking requires every purchased
// quantity to still be on hand: consumed stock makes the purchase immutable.
func (s *Service) EditPurchase(ctx context.Context, scope shared.Scope, id uuid.UUID, update PurchaseUpdate) (Purchase, error) {
	update.GrandTotal = shared.Round2(update.GrandTotal)
	var out Purchase
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled {
			return ErrDocumentCancelled
		}
		if p.FinanciallyEqual(update) {
			p.Number = update.Number
			p.Date = s.docDate(update.Date)
			out = p
			return tx.UpdatePurchaseFinancials(ctx, p)
		}
		if err := validateItems(update.Items); err != nil {
			return err
		}
		if err := s.unwindPurchase(ctx, tx, p); err != nil {
			return err
		}
		if _, err := tx.DeleteLinesByReference(ctx, p.OrgID, ledger.RefTypePurchase, p.ID); err != nil {
			return err
		}
		p.Number = update.Number
		p.GrandTotal = update.GrandTotal
		p.Date = s.docDate(update.Date)
		p.Items = update.Items
		if err := s.bookPurchase(ctx, tx, scope, p); err != nil {
			return err
		}
		out = p
		return tx.UpdatePurchaseFinancials(ctx, p)
	})
	if err != nil {
		return Purchase{}, err
	}
	s.afterCommit(ctx, scope, "posting.purchase.edit", id.String(), map[string]any{"grand_total": out.GrandTotal})
	return out, nil
}

// CancelPurchase reverses a purchase if its stock is still fully on hand.
func (s *Service) CancelPurchase(ctx context.Context, scope shared.Scope, id uuid.UUID) error {
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled {
			return ErrDocumentCancelled
		}
		if err := s.unwindPurchase(ctx, tx, p); err != nil {
			return err
		}
		accounts, err := s.purchaseAccounts(ctx, tx, p.OrgID)
		if err != nil {
			return err
		}
		lines, err := PurchaseLines(accounts, p)
		if err != nil {
			return err
		}
		reversed := ReverseLines(lines)
		if err := ledger.ValidateBatch(reversed); err != nil {
			return err
		}
		rows := ledger.BuildLines(scope, ledger.RefTypePurchase, p.ID, s.now().UTC(), reversed)
		if err := tx.InsertLines(ctx, rows); err != nil {
			return err
		}
		return tx.UpdatePurchaseStatus(ctx, p.OrgID, p.ID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, scope, "posting.purchase.cancel", id.String(), nil)
	return nil
}

// unwindPurchase removes the purchased quantities from stock, failing when
// any of them has already been consumed, and releases the supplier balance.
func (s *Service) unwindPurchase(ctx context.Context, tx TxRepository, p Purchase) error {
	for _, item := range p.Items {
		balance, err := tx.GetStockForUpdate(ctx, p.OrgID, p.BranchID, item.ProductID)
		if err != nil {
			return err
		}
		if err := balance.EnsureReversible(item.Qty); err != nil {
			return err
		}
		next, err := balance.Subtract(item.Qty)
		if err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, next); err != nil {
			return err
		}
	}
	return tx.AdjustSupplierBalance(ctx, p.OrgID, p.SupplierID, -p.GrandTotal)
}

// CancelPayment reverses a payment's posting set and restores the
// counterparty balance it had settled.
func (s *Service) CancelPayment(ctx context.Context, scope shared.Scope, id uuid.UUID) error {
	err := s.runTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled {
			return ErrDocumentCancelled
		}
		accounts, err := s.paymentAccounts(ctx, tx, p.OrgID, p.Direction, p.Via)
		if err != nil {
			return err
		}
		lines, err := PaymentLines(accounts, p)
		if err != nil {
			return err
		}
		reversed := ReverseLines(lines)
		if err := ledger.ValidateBatch(reversed); err != nil {
			return err
		}
		rows := ledger.BuildLines(scope, ledger.RefTypePayment, p.ID, s.now().UTC(), reversed)
		if err := tx.InsertLines(ctx, rows); err != nil {
			return err
		}
		if err := s.applyPaymentBalance(ctx, tx, p, true); err != nil {
			return err
		}
		return tx.UpdatePaymentStatus(ctx, p.OrgID, p.ID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, scope, "posting.payment.cancel", id.String(), nil)
	return nil
}
