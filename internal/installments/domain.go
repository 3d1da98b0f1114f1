package installments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle of a deferred-payment plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "ACTIVE"
	PlanCompleted PlanStatus = "COMPLETED"
	PlanDefaulted PlanStatus = "DEFAULTED"
)

// InstallmentStatus tracks how much of one due amount has been settled.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPartial InstallmentStatus = "PARTIAL"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

// ReconciliationStatus is the lifecycle of a queued payment match.
type ReconciliationStatus string

const (
	ReconciliationPending   ReconciliationStatus = "PENDING"
	ReconciliationMatched   ReconciliationStatus = "MATCHED"
	ReconciliationUnmatched ReconciliationStatus = "UNMATCHED"
	ReconciliationFailed    ReconciliationStatus = "FAILED"
)

// Plan is a deferred-payment schedule attached to a customer, usually
// originating from one invoice. Overpayment accumulates in AdvanceBalance
// instead of being discarded.
type Plan struct {
	ID             uuid.UUID
	OrgID          int64
	CustomerID     int64
	InvoiceID      *uuid.UUID
	TotalAmount    float64
	DownPayment    float64
	AdvanceBalance float64
	Status         PlanStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Installment is one scheduled due amount within a plan.
type Installment struct {
	ID         uuid.UUID
	PlanID     uuid.UUID
	SeqNo      int
	DueDate    time.Time
	Principal  float64
	Interest   float64
	Total      float64
	PaidAmount float64
	Status     InstallmentStatus
}

// Remaining is the unpaid part of the installment.
func (i Installment) Remaining() float64 {
	if rest := i.Total - i.PaidAmount; rest > 0 {
		return rest
	}
	return 0
}

// Settled reports whether the installment needs no further allocation.
func (i Installment) Settled() bool {
	return i.Status == InstallmentPaid
}

// PendingReconciliation queues a received payment for allocation against a
// plan's installments.
type PendingReconciliation struct {
	ID        uuid.UUID
	OrgID     int64
	PlanID    uuid.UUID
	PaymentID uuid.UUID
	Amount    float64
	Status    ReconciliationStatus
	MatchedBy *int64
	MatchedAt *time.Time
	CreatedAt time.Time
}

// Allocation records how much of a payment landed on one installment.
type Allocation struct {
	InstallmentID uuid.UUID         `json:"installment_id"`
	SeqNo         int               `json:"seq_no"`
	Amount        float64           `json:"amount"`
	Status        InstallmentStatus `json:"status"`
}

// Result summarizes one reconciliation run.
type Result struct {
	PendingID   uuid.UUID    `json:"pending_id"`
	PlanID      uuid.UUID    `json:"plan_id"`
	Allocations []Allocation `json:"allocations"`
	Advance     float64      `json:"advance"`
	PlanStatus  PlanStatus   `json:"plan_status"`
}

var (
	// ErrNotFound indicates a missing plan or queued reconciliation.
	ErrNotFound = errors.New("installments: not found")
	// ErrValidation indicates malformed reconciliation input.
	ErrValidation = errors.New("installments: invalid input")
	// ErrUnknownInstallment indicates an explicit allocation order names an
	// installment outside the plan.
	ErrUnknownInstallment = errors.New("installments: installment not in plan")
)
