package posting

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus enumerates the lifecycle of a posted business document.
type DocumentStatus string

const (
	StatusPosted    DocumentStatus = "POSTED"
	StatusCancelled DocumentStatus = "CANCELLED"
)

// PaymentDirection distinguishes incoming from outgoing payments.
type PaymentDirection string

const (
	PaymentInflow  PaymentDirection = "INFLOW"
	PaymentOutflow PaymentDirection = "OUTFLOW"
)

// AdjustmentDirection distinguishes stock additions from removals.
type AdjustmentDirection string

const (
	AdjustmentAdd      AdjustmentDirection = "ADD"
	AdjustmentSubtract AdjustmentDirection = "SUBTRACT"
)

// DocumentItem is one product line on an invoice or purchase.
type DocumentItem struct {
	ProductID int64
	Qty       float64
	UnitCost  float64
}

// Invoice is a sales document owning a posting set.
type Invoice struct {
	ID         uuid.UUID
	OrgID      int64
	BranchID   int64
	CustomerID int64
	Number     string
	GrandTotal float64
	TaxAmount  float64
	Status     DocumentStatus
	Date       time.Time
	Items      []DocumentItem
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Purchase is a supplier document owning a posting set.
type Purchase struct {
	ID         uuid.UUID
	OrgID      int64
	BranchID   int64
	SupplierID int64
	Number     string
	GrandTotal float64
	Status     DocumentStatus
	Date       time.Time
	Items      []DocumentItem
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payment records money moving in or out against a counterparty.
type Payment struct {
	ID         uuid.UUID
	OrgID      int64
	BranchID   int64
	Direction  PaymentDirection
	CustomerID *int64
	SupplierID *int64
	InvoiceID  *uuid.UUID
	Amount     float64
	Method     string
	Via        string // CASH or BANK
	Status     DocumentStatus
	Date       time.Time
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StockAdjustment corrects on-hand quantity, optionally with a cost value.
type StockAdjustment struct {
	ID        uuid.UUID
	OrgID     int64
	BranchID  int64
	ProductID int64
	Direction AdjustmentDirection
	Qty       float64
	UnitCost  float64
	CostValue float64
	Note      string
	Status    DocumentStatus
	Date      time.Time
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrDocumentCancelled indicates the document is terminal and cannot be
	// edited or cancelled again. Hard delete is never offered.
	ErrDocumentCancelled = errors.New("posting: document is cancelled")
	// ErrDocumentNotFound indicates a missing business document.
	ErrDocumentNotFound = errors.New("posting: document not found")
	// ErrValidation indicates malformed operation input.
	ErrValidation = errors.New("posting: invalid input")
)

// FinanciallyEqual reports whether an invoice update leaves monetary fields
// untouched; such edits skip the reversal path entirely.
func (inv Invoice) FinanciallyEqual(update InvoiceUpdate) bool {
	if inv.GrandTotal != update.GrandTotal || inv.TaxAmount != update.TaxAmount {
		return false
	}
	return itemsEqual(inv.Items, update.Items)
}

// FinanciallyEqual reports whether a purchase update changes monetary fields.
func (p Purchase) FinanciallyEqual(update PurchaseUpdate) bool {
	if p.GrandTotal != update.GrandTotal {
		return false
	}
	return itemsEqual(p.Items, update.Items)
}

func itemsEqual(a, b []DocumentItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
