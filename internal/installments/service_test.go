package installments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryPlanStore struct {
	pending      map[uuid.UUID]PendingReconciliation
	plans        map[uuid.UUID]Plan
	installments map[uuid.UUID][]Installment

	failUpdatePlan error
}

type memoryPlanRepo struct {
	store *memoryPlanStore
}

func newMemoryPlanRepo() *memoryPlanRepo {
	return &memoryPlanRepo{store: &memoryPlanStore{
		pending:      map[uuid.UUID]PendingReconciliation{},
		plans:        map[uuid.UUID]Plan{},
		installments: map[uuid.UUID][]Installment{},
	}}
}

func (r *memoryPlanRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPlanTx{store: r.store})
}

func (r *memoryPlanRepo) ListPending(_ context.Context, orgID int64) ([]PendingReconciliation, error) {
	var out []PendingReconciliation
	for _, p := range r.store.pending {
		if p.OrgID == orgID && p.Status == ReconciliationPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPlanRepo) GetPlan(_ context.Context, orgID int64, id uuid.UUID) (Plan, []Installment, error) {
	plan, ok := r.store.plans[id]
	if !ok || plan.OrgID != orgID {
		return Plan{}, nil, ErrNotFound
	}
	return plan, r.store.installments[id], nil
}

func (r *memoryPlanRepo) UpdatePendingStatus(_ context.Context, orgID int64, id uuid.UUID, status ReconciliationStatus) error {
	p, ok := r.store.pending[id]
	if !ok || p.OrgID != orgID {
		return ErrNotFound
	}
	p.Status = status
	r.store.pending[id] = p
	return nil
}

func (r *memoryPlanRepo) MarkOverdueInstallments(_ context.Context, asOf time.Time) (int64, error) {
	var count int64
	for planID, schedule := range r.store.installments {
		if r.store.plans[planID].Status != PlanActive {
			continue
		}
		for idx := range schedule {
			i := schedule[idx]
			if i.DueDate.Before(asOf) && i.PaidAmount < i.Total &&
				(i.Status == InstallmentPending || i.Status == InstallmentPartial) {
				schedule[idx].Status = InstallmentOverdue
				count++
			}
		}
	}
	return count, nil
}

func (r *memoryPlanRepo) MarkDefaultedPlans(_ context.Context, cutoff time.Time) (int64, error) {
	var count int64
	for id, plan := range r.store.plans {
		if plan.Status != PlanActive {
			continue
		}
		for _, i := range r.store.installments[id] {
			if i.Status == InstallmentOverdue && i.DueDate.Before(cutoff) {
				plan.Status = PlanDefaulted
				r.store.plans[id] = plan
				count++
				break
			}
		}
	}
	return count, nil
}

type memoryPlanTx struct {
	store *memoryPlanStore
}

func (t *memoryPlanTx) GetPendingForUpdate(_ context.Context, orgID int64, id uuid.UUID) (PendingReconciliation, error) {
	p, ok := t.store.pending[id]
	if !ok || p.OrgID != orgID {
		return PendingReconciliation{}, ErrNotFound
	}
	return p, nil
}

func (t *memoryPlanTx) GetPlanForUpdate(_ context.Context, orgID int64, id uuid.UUID) (Plan, error) {
	plan, ok := t.store.plans[id]
	if !ok || plan.OrgID != orgID {
		return Plan{}, ErrNotFound
	}
	return plan, nil
}

func (t *memoryPlanTx) ListInstallments(_ context.Context, planID uuid.UUID) ([]Installment, error) {
	out := make([]Installment, len(t.store.installments[planID]))
	copy(out, t.store.installments[planID])
	return out, nil
}

func (t *memoryPlanTx) UpdateInstallment(_ context.Context, installment Installment) error {
	schedule := t.store.installments[installment.PlanID]
	for idx := range schedule {
		if schedule[idx].ID == installment.ID {
			schedule[idx] = installment
		}
	}
	return nil
}

func (t *memoryPlanTx) UpdatePlan(_ context.Context, plan Plan) error {
	if t.store.failUpdatePlan != nil {
		return t.store.failUpdatePlan
	}
	t.store.plans[plan.ID] = plan
	return nil
}

func (t *memoryPlanTx) MarkMatched(_ context.Context, pending PendingReconciliation) error {
	t.store.pending[pending.ID] = pending
	return nil
}

func seedPlan(repo *memoryPlanRepo, amounts []float64, paid []float64) (Plan, []Installment) {
	plan := Plan{ID: uuid.New(), OrgID: 1, CustomerID: 7, Status: PlanActive}
	var schedule []Installment
	for idx, amount := range amounts {
		installment := Installment{
			ID:      uuid.New(),
			PlanID:  plan.ID,
			SeqNo:   idx + 1,
			DueDate: time.Date(2025, time.Month(idx+1), 1, 0, 0, 0, 0, time.UTC),
			Total:   amount,
		}
		if paid != nil {
			installment.PaidAmount = paid[idx]
		}
		if installment.Remaining() <= 0 {
			installment.Status = InstallmentPaid
		} else if installment.PaidAmount > 0 {
			installment.Status = InstallmentPartial
		} else {
			installment.Status = InstallmentPending
		}
		plan.TotalAmount += amount
		schedule = append(schedule, installment)
	}
	repo.store.plans[plan.ID] = plan
	repo.store.installments[plan.ID] = schedule
	return plan, schedule
}

func seedPending(repo *memoryPlanRepo, planID uuid.UUID, amount float64) PendingReconciliation {
	pending := PendingReconciliation{
		ID:        uuid.New(),
		OrgID:     1,
		PlanID:    planID,
		PaymentID: uuid.New(),
		Amount:    amount,
		Status:    ReconciliationPending,
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	repo.store.pending[pending.ID] = pending
	return pending
}

func newPlanService(repo *memoryPlanRepo) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) })
	return svc
}

func TestReconcileAllocatesOldestDueFirst(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100, 100, 100}, nil)
	pending := seedPending(repo, plan.ID, 250)
	svc := newPlanService(repo)
	scope := shared.Scope{OrgID: 1, ActorID: 3}

	result, err := svc.Reconcile(context.Background(), scope, pending.ID, nil)
	require.NoError(t, err)
	require.Len(t, result.Allocations, 3)
	require.InDelta(t, 100, result.Allocations[0].Amount, 1e-9)
	require.InDelta(t, 100, result.Allocations[1].Amount, 1e-9)
	require.InDelta(t, 50, result.Allocations[2].Amount, 1e-9)
	require.Equal(t, InstallmentPaid, result.Allocations[0].Status)
	require.Equal(t, InstallmentPaid, result.Allocations[1].Status)
	require.Equal(t, InstallmentPartial, result.Allocations[2].Status)
	require.Zero(t, result.Advance)
	require.Equal(t, PlanActive, result.PlanStatus)

	stored := repo.store.pending[pending.ID]
	require.Equal(t, ReconciliationMatched, stored.Status)
	require.NotNil(t, stored.MatchedBy)
	require.EqualValues(t, 3, *stored.MatchedBy)
	require.NotNil(t, stored.MatchedAt)
}

func TestReconcileOverpaymentAccumulatesAdvance(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100, 100}, []float64{100, 100})
	pending := seedPending(repo, plan.ID, 50)
	svc := newPlanService(repo)

	result, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID, nil)
	require.NoError(t, err)
	require.Empty(t, result.Allocations)
	require.InDelta(t, 50, result.Advance, 1e-9)
	require.Equal(t, PlanCompleted, result.PlanStatus)

	for _, installment := range repo.store.installments[plan.ID] {
		require.Equal(t, InstallmentPaid, installment.Status)
	}
}

func TestReconcileCompletesPlan(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100, 100}, []float64{100, 40})
	pending := seedPending(repo, plan.ID, 60)
	svc := newPlanService(repo)

	result, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID, nil)
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.InDelta(t, 60, result.Allocations[0].Amount, 1e-9)
	require.Equal(t, PlanCompleted, result.PlanStatus)
	require.Equal(t, PlanCompleted, repo.store.plans[plan.ID].Status)
}

func TestReconcileHonoursExplicitOrder(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, schedule := seedPlan(repo, []float64{100, 100, 100}, nil)
	pending := seedPending(repo, plan.ID, 150)
	svc := newPlanService(repo)

	// allocate against the last installment first
	result, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID,
		[]uuid.UUID{schedule[2].ID, schedule[0].ID})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, 3, result.Allocations[0].SeqNo)
	require.InDelta(t, 100, result.Allocations[0].Amount, 1e-9)
	require.Equal(t, 1, result.Allocations[1].SeqNo)
	require.InDelta(t, 50, result.Allocations[1].Amount, 1e-9)
}

func TestReconcileRejectsForeignInstallment(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100}, nil)
	pending := seedPending(repo, plan.ID, 100)
	svc := newPlanService(repo)

	_, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID,
		[]uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, ErrUnknownInstallment)
	require.Equal(t, ReconciliationUnmatched, repo.store.pending[pending.ID].Status)
}

func TestReconcileFlagsNonpositiveAmountUnmatched(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100}, nil)
	pending := seedPending(repo, plan.ID, 0)
	svc := newPlanService(repo)

	_, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID, nil)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, ReconciliationUnmatched, repo.store.pending[pending.ID].Status)
}

func TestReconcileFlagsStorageErrorFailed(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan, _ := seedPlan(repo, []float64{100}, nil)
	pending := seedPending(repo, plan.ID, 100)
	repo.store.failUpdatePlan = errors.New("serialization failure")
	svc := newPlanService(repo)

	_, err := svc.Reconcile(context.Background(), shared.Scope{OrgID: 1, ActorID: 3}, pending.ID, nil)
	require.Error(t, err)
	require.Equal(t, ReconciliationFailed, repo.store.pending[pending.ID].Status)
}

func TestSweepOverdueMarksAndDefaults(t *testing.T) {
	repo := newMemoryPlanRepo()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	// Unpaid since January: overdue and far past the grace period.
	stale := Plan{ID: uuid.New(), OrgID: 1, Status: PlanActive}
	repo.store.plans[stale.ID] = stale
	repo.store.installments[stale.ID] = []Installment{
		{ID: uuid.New(), PlanID: stale.ID, SeqNo: 1, DueDate: at(2025, 1, 1), Total: 100, Status: InstallmentPending},
		{ID: uuid.New(), PlanID: stale.ID, SeqNo: 2, DueDate: at(2025, 5, 20), Total: 100, PaidAmount: 100, Status: InstallmentPaid},
	}

	// Past due only recently: overdue, but the plan stays active.
	fresh := Plan{ID: uuid.New(), OrgID: 1, Status: PlanActive}
	repo.store.plans[fresh.ID] = fresh
	repo.store.installments[fresh.ID] = []Installment{
		{ID: uuid.New(), PlanID: fresh.ID, SeqNo: 1, DueDate: at(2025, 5, 20), Total: 100, PaidAmount: 40, Status: InstallmentPartial},
	}

	svc := newPlanService(repo)
	result, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Overdue)
	require.EqualValues(t, 1, result.Defaulted)

	require.Equal(t, InstallmentOverdue, repo.store.installments[stale.ID][0].Status)
	require.Equal(t, InstallmentPaid, repo.store.installments[stale.ID][1].Status)
	require.Equal(t, PlanDefaulted, repo.store.plans[stale.ID].Status)

	require.Equal(t, InstallmentOverdue, repo.store.installments[fresh.ID][0].Status)
	require.Equal(t, PlanActive, repo.store.plans[fresh.ID].Status)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	repo := newMemoryPlanRepo()
	plan := Plan{ID: uuid.New(), OrgID: 1, Status: PlanActive}
	repo.store.plans[plan.ID] = plan
	repo.store.installments[plan.ID] = []Installment{
		{ID: uuid.New(), PlanID: plan.ID, SeqNo: 1,
			DueDate: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), Total: 100, Status: InstallmentPending},
	}
	svc := newPlanService(repo)

	first, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Overdue)

	second, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Overdue)
	require.Zero(t, second.Defaulted)
}
