package recon

import (
	"time"
)

// Tolerances for the integrity scans. Document-level totals must agree to
// the cent-plus-rounding allowance; party balances accumulate over years of
// history and tolerate a wider drift before surfacing.
const (
	OrgTolerance     = 0.01
	DocTolerance     = 0.05
	BalanceTolerance = 1.00
	TopMismatches    = 20
)

// CheckStatus is the outcome of a whole-organization balance check.
type CheckStatus string

const (
	CheckBalanced     CheckStatus = "BALANCED"
	CheckOutOfBalance CheckStatus = "OUT_OF_BALANCE"
)

// OrgCheck is one nightly zero-net verification of an organization's ledger.
type OrgCheck struct {
	ID        int64
	OrgID     int64
	Debit     float64
	Credit    float64
	Diff      float64
	Status    CheckStatus
	CheckedAt time.Time
}

// MismatchKind identifies which stored figure disagrees with the ledger.
type MismatchKind string

const (
	MismatchInvoiceTotal    MismatchKind = "INVOICE_TOTAL"
	MismatchPaymentAmount   MismatchKind = "PAYMENT_AMOUNT"
	MismatchCustomerBalance MismatchKind = "CUSTOMER_BALANCE"
)

// Mismatch is one stored-versus-derived disagreement beyond tolerance.
type Mismatch struct {
	Kind    MismatchKind `json:"kind"`
	Key     string       `json:"key"` // document UUID or customer ID
	Label   string       `json:"label"`
	Stored  float64      `json:"stored"`
	Derived float64      `json:"derived"`
	Diff    float64      `json:"diff"`
}

// Report is the per-organization integrity scan result: the worst offenders
// of each kind, largest absolute difference first.
type Report struct {
	OrgID       int64      `json:"org_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Invoices    []Mismatch `json:"invoices"`
	Payments    []Mismatch `json:"payments"`
	Customers   []Mismatch `json:"customers"`
}

// Clean reports whether the scan found nothing beyond tolerance.
func (r Report) Clean() bool {
	return len(r.Invoices) == 0 && len(r.Payments) == 0 && len(r.Customers) == 0
}
