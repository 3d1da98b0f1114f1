package installments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository is the transactional surface one reconciliation run touches.
type TxRepository interface {
	GetPendingForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (PendingReconciliation, error)
	GetPlanForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Plan, error)
	ListInstallments(ctx context.Context, planID uuid.UUID) ([]Installment, error)
	UpdateInstallment(ctx context.Context, installment Installment) error
	UpdatePlan(ctx context.Context, plan Plan) error
	MarkMatched(ctx context.Context, pending PendingReconciliation) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPending(ctx context.Context, orgID int64) ([]PendingReconciliation, error)
	GetPlan(ctx context.Context, orgID int64, id uuid.UUID) (Plan, []Installment, error)
	UpdatePendingStatus(ctx context.Context, orgID int64, id uuid.UUID, status ReconciliationStatus) error
	MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error)
	MarkDefaultedPlans(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPort records reconciliation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service allocates queued payments across installment plans.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the installment reconciliation service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListPending returns queued payments awaiting allocation.
func (s *Service) ListPending(ctx context.Context, orgID int64) ([]PendingReconciliation, error) {
	return s.repo.ListPending(ctx, orgID)
}

// Plan returns a plan with its schedule.
func (s *Service) Plan(ctx context.Context, orgID int64, id uuid.UUID) (Plan, []Installment, error) {
	return s.repo.GetPlan(ctx, orgID, id)
}

// Reconcile allocates a queued payment across the plan's installments: the
// caller-given order when provided, oldest due date first otherwise. Each
// selected installment absorbs min(remaining payment, unpaid part); whatever
// survives every eligible installment lands in the plan's advance balance.
//
// Repeated submission of the same reconciliation allocates again; there is
// no duplicate guard here, callers own submission discipline.
func (s *Service) Reconcile(ctx context.Context, scope shared.Scope, pendingID uuid.UUID, explicit []uuid.UUID) (Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pending, err := tx.GetPendingForUpdate(ctx, scope.OrgID, pendingID)
		if err != nil {
			return err
		}
		if pending.Amount <= 0 {
			return fmt.Errorf("%w: pending amount must be positive", ErrValidation)
		}
		plan, err := tx.GetPlanForUpdate(ctx, scope.OrgID, pending.PlanID)
		if err != nil {
			return err
		}
		schedule, err := tx.ListInstallments(ctx, plan.ID)
		if err != nil {
			return err
		}
		ordered, err := orderSchedule(schedule, explicit)
		if err != nil {
			return err
		}

		remaining := shared.Round2(pending.Amount)
		result = Result{PendingID: pending.ID, PlanID: plan.ID}
		for _, installment := range ordered {
			if remaining <= 0 {
				break
			}
			due := installment.Remaining()
			if due <= 0 {
				continue
			}
			applied := shared.Round2(due)
			if remaining < due {
				applied = remaining
			}
			installment.PaidAmount = shared.Round2(installment.PaidAmount + applied)
			if installment.Remaining() <= 0 {
				installment.Status = InstallmentPaid
			} else {
				installment.Status = InstallmentPartial
			}
			if err := tx.UpdateInstallment(ctx, installment); err != nil {
				return err
			}
			remaining = shared.Round2(remaining - applied)
			result.Allocations = append(result.Allocations, Allocation{
				InstallmentID: installment.ID,
				SeqNo:         installment.SeqNo,
				Amount:        applied,
				Status:        installment.Status,
			})
		}

		if remaining > 0 {
			plan.AdvanceBalance = shared.Round2(plan.AdvanceBalance + remaining)
		}
		if allPaid(schedule, result.Allocations) {
			plan.Status = PlanCompleted
		}
		if err := tx.UpdatePlan(ctx, plan); err != nil {
			return err
		}

		actor := scope.ActorID
		at := s.now().UTC()
		pending.Status = ReconciliationMatched
		pending.MatchedBy = &actor
		pending.MatchedAt = &at
		if err := tx.MarkMatched(ctx, pending); err != nil {
			return err
		}

		result.Advance = plan.AdvanceBalance
		result.PlanStatus = plan.Status
		return nil
	})
	if err != nil {
		s.flagPending(ctx, scope.OrgID, pendingID, err)
		return Result{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    scope.OrgID,
			ActorID:  scope.ActorID,
			Action:   "installments.reconcile",
			Entity:   "pending_reconciliation",
			EntityID: pendingID.String(),
			Meta: map[string]any{
				"allocations": len(result.Allocations),
				"advance":     result.Advance,
			},
			At: s.now(),
		})
	}
	return result, nil
}

// flagPending records why an allocation attempt did not go through, so the
// queue distinguishes bad requests from plans needing operator attention.
// Best effort: the reconcile error is what the caller sees either way.
func (s *Service) flagPending(ctx context.Context, orgID int64, pendingID uuid.UUID, cause error) {
	if errors.Is(cause, ErrNotFound) {
		return
	}
	status := ReconciliationFailed
	if errors.Is(cause, ErrUnknownInstallment) || errors.Is(cause, ErrValidation) {
		status = ReconciliationUnmatched
	}
	_ = s.repo.UpdatePendingStatus(ctx, orgID, pendingID, status)
}

// DefaultGracePeriod is how long an installment may sit overdue before its
// plan is considered defaulted.
const DefaultGracePeriod = 90 * 24 * time.Hour

// SweepResult counts one delinquency sweep's state transitions.
type SweepResult struct {
	Overdue   int64 `json:"overdue"`
	Defaulted int64 `json:"defaulted"`
}

// SweepOverdue marks unpaid installments past their due date OVERDUE, then
// marks active plans DEFAULTED once an installment has been overdue beyond
// the grace period. Runs across all organizations.
func (s *Service) SweepOverdue(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now().UTC()
	overdue, err := s.repo.MarkOverdueInstallments(ctx, now)
	if err != nil {
		return result, err
	}
	result.Overdue = overdue
	defaulted, err := s.repo.MarkDefaultedPlans(ctx, now.Add(-DefaultGracePeriod))
	if err != nil {
		return result, err
	}
	result.Defaulted = defaulted
	return result, nil
}

// orderSchedule resolves the allocation order: the explicit list verbatim,
// or the whole schedule oldest due date first.
func orderSchedule(schedule []Installment, explicit []uuid.UUID) ([]Installment, error) {
	if len(explicit) == 0 {
		ordered := make([]Installment, len(schedule))
		copy(ordered, schedule)
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].DueDate.Equal(ordered[j].DueDate) {
				return ordered[i].SeqNo < ordered[j].SeqNo
			}
			return ordered[i].DueDate.Before(ordered[j].DueDate)
		})
		return ordered, nil
	}
	byID := make(map[uuid.UUID]Installment, len(schedule))
	for _, installment := range schedule {
		byID[installment.ID] = installment
	}
	ordered := make([]Installment, 0, len(explicit))
	for _, id := range explicit {
		installment, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInstallment, id)
		}
		ordered = append(ordered, installment)
	}
	return ordered, nil
}

// allPaid reports whether every installment is settled after this run's
// allocations are applied on top of the loaded schedule.
func allPaid(schedule []Installment, allocations []Allocation) bool {
	status := make(map[uuid.UUID]InstallmentStatus, len(schedule))
	for _, installment := range schedule {
		status[installment.ID] = installment.Status
	}
	for _, allocation := range allocations {
		status[allocation.InstallmentID] = allocation.Status
	}
	for _, s := range status {
		if s != InstallmentPaid {
			return false
		}
	}
	return len(status) > 0
}
