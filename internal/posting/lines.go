package posting

import (
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceAccounts groups the resolved accounts an invoice posting needs.
type InvoiceAccounts struct {
	Receivable ledger.Account
	Sales      ledger.Account
	TaxPayable ledger.Account
}

// InvoiceLines maps an invoice to its posting set:
// Dr AR grandTotal / Cr Sales (grandTotal - tax) / Cr Tax tax when positive.
func InvoiceLines(accounts InvoiceAccounts, inv Invoice) ([]ledger.LineInput, error) {
	gross := shared.Round2(inv.GrandTotal)
	tax := shared.Round2(inv.TaxAmount)
	if gross <= 0 {
		return nil, fmt.Errorf("%w: grand total must be positive", ErrValidation)
	}
	if tax < 0 || tax >= gross {
		return nil, fmt.Errorf("%w: tax must be within [0, grand total)", ErrValidation)
	}
	customer := inv.CustomerID
	lines := []ledger.LineInput{
		{AccountID: accounts.Receivable.ID, CustomerID: &customer, Debit: gross, Memo: "Invoice " + inv.Number},
		{AccountID: accounts.Sales.ID, Credit: shared.Round2(gross - tax), Memo: "Invoice " + inv.Number},
	}
	if tax > 0 {
		lines = append(lines, ledger.LineInput{AccountID: accounts.TaxPayable.ID, Credit: tax, Memo: "Invoice " + inv.Number + " tax"})
	}
	return lines, nil
}

// PurchaseAccounts groups the resolved accounts a purchase posting needs.
type PurchaseAccounts struct {
	InventoryAsset ledger.Account
	Payable        ledger.Account
}

// PurchaseLines maps a purchase to Dr Inventory / Cr AP at grand total.
func PurchaseLines(accounts PurchaseAccounts, p Purchase) ([]ledger.LineInput, error) {
	gross := shared.Round2(p.GrandTotal)
	if gross <= 0 {
		return nil, fmt.Errorf("%w: grand total must be positive", ErrValidation)
	}
	supplier := p.SupplierID
	return []ledger.LineInput{
		{AccountID: accounts.InventoryAsset.ID, Debit: gross, Memo: "Purchase " + p.Number},
		{AccountID: accounts.Payable.ID, SupplierID: &supplier, Credit: gross, Memo: "Purchase " + p.Number},
	}, nil
}

// PaymentAccounts groups the resolved accounts a payment posting needs.
type PaymentAccounts struct {
	Asset        ledger.Account // cash or bank
	Counterparty ledger.Account // AR for inflow, AP for outflow
}

// PaymentLines maps a payment: inflow Dr Cash/Bank, Cr AR; outflow Dr AP, Cr Cash/Bank.
func PaymentLines(accounts PaymentAccounts, p Payment) ([]ledger.LineInput, error) {
	amount := shared.Round2(p.Amount)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	switch p.Direction {
	case PaymentInflow:
		if p.CustomerID == nil {
			return nil, fmt.Errorf("%w: inflow requires customer", ErrValidation)
		}
		return []ledger.LineInput{
			{AccountID: accounts.Asset.ID, Debit: amount, Memo: "Payment received"},
			{AccountID: accounts.Counterparty.ID, CustomerID: p.CustomerID, Credit: amount, Memo: "Payment received"},
		}, nil
	case PaymentOutflow:
		if p.SupplierID == nil {
			return nil, fmt.Errorf("%w: outflow requires supplier", ErrValidation)
		}
		return []ledger.LineInput{
			{AccountID: accounts.Counterparty.ID, SupplierID: p.SupplierID, Debit: amount, Memo: "Payment sent"},
			{AccountID: accounts.Asset.ID, Credit: amount, Memo: "Payment sent"},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown payment direction %q", ErrValidation, p.Direction)
}

// AdjustmentAccounts groups the resolved accounts a stock adjustment needs.
type AdjustmentAccounts struct {
	InventoryAsset ledger.Account
	Gain           ledger.Account
	Shrinkage      ledger.Account
}

// AdjustmentLines maps a stock adjustment. A zero cost value posts nothing:
// the quantity still moves, but no monetary entry exists to book.
func AdjustmentLines(accounts AdjustmentAccounts, adj StockAdjustment) ([]ledger.LineInput, error) {
	if adj.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	value := shared.Round2(adj.CostValue)
	if value < 0 {
		return nil, fmt.Errorf("%w: cost value cannot be negative", ErrValidation)
	}
	if value == 0 {
		return nil, nil
	}
	switch adj.Direction {
	case AdjustmentAdd:
		return []ledger.LineInput{
			{AccountID: accounts.InventoryAsset.ID, Debit: value, Memo: "Stock adjustment"},
			{AccountID: accounts.Gain.ID, Credit: value, Memo: "Stock adjustment"},
		}, nil
	case AdjustmentSubtract:
		return []ledger.LineInput{
			{AccountID: accounts.Shrinkage.ID, Debit: value, Memo: "Stock adjustment"},
			{AccountID: accounts.InventoryAsset.ID, Credit: value, Memo: "Stock adjustment"},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown adjustment direction %q", ErrValidation, adj.Direction)
}

// ReverseLines swaps the sides of a posting set, producing the exact
// reversal used by cancellation.
func ReverseLines(lines []ledger.LineInput) []ledger.LineInput {
	out := make([]ledger.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.LineInput{
			AccountID:  line.AccountID,
			BranchID:   line.BranchID,
			CustomerID: line.CustomerID,
			SupplierID: line.SupplierID,
			Debit:      line.Credit,
			Credit:     line.Debit,
			Memo:       "Reversal: " + line.Memo,
		})
	}
	return out
}
