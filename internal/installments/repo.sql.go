package installments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists plans, schedules, and queued reconciliations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("installments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) GetPendingForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (PendingReconciliation, error) {
	var p PendingReconciliation
	err := t.tx.QueryRow(ctx, `SELECT id, org_id, plan_id, payment_id, amount, status, matched_by, matched_at, created_at
FROM pending_reconciliations WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id).
		Scan(&p.ID, &p.OrgID, &p.PlanID, &p.PaymentID, &p.Amount, &p.Status, &p.MatchedBy, &p.MatchedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingReconciliation{}, ErrNotFound
		}
		return PendingReconciliation{}, err
	}
	return p, nil
}

func (t *txRepository) GetPlanForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Plan, error) {
	var plan Plan
	err := t.tx.QueryRow(ctx, `SELECT id, org_id, customer_id, invoice_id, total_amount, down_payment, advance_balance, status, created_at, updated_at
FROM installment_plans WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id).
		Scan(&plan.ID, &plan.OrgID, &plan.CustomerID, &plan.InvoiceID, &plan.TotalAmount, &plan.DownPayment,
			&plan.AdvanceBalance, &plan.Status, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, ErrNotFound
		}
		return Plan{}, err
	}
	return plan, nil
}

func (t *txRepository) ListInstallments(ctx context.Context, planID uuid.UUID) ([]Installment, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, plan_id, seq_no, due_date, principal, interest, total, paid_amount, status
FROM installments WHERE plan_id=$1 ORDER BY seq_no`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstallments(rows)
}

func (t *txRepository) UpdateInstallment(ctx context.Context, installment Installment) error {
	_, err := t.tx.Exec(ctx, `UPDATE installments SET paid_amount=$2, status=$3 WHERE id=$1`,
		installment.ID, installment.PaidAmount, installment.Status)
	return err
}

func (t *txRepository) UpdatePlan(ctx context.Context, plan Plan) error {
	_, err := t.tx.Exec(ctx, `UPDATE installment_plans SET advance_balance=$2, status=$3, updated_at=now() WHERE id=$1`,
		plan.ID, plan.AdvanceBalance, plan.Status)
	return err
}

func (t *txRepository) MarkMatched(ctx context.Context, pending PendingReconciliation) error {
	_, err := t.tx.Exec(ctx, `UPDATE pending_reconciliations SET status=$2, matched_by=$3, matched_at=$4 WHERE id=$1`,
		pending.ID, pending.Status, pending.MatchedBy, pending.MatchedAt)
	return err
}

// ListPending returns queued reconciliations awaiting allocation.
func (r *Repository) ListPending(ctx context.Context, orgID int64) ([]PendingReconciliation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, plan_id, payment_id, amount, status, matched_by, matched_at, created_at
FROM pending_reconciliations WHERE org_id=$1 AND status=$2 ORDER BY created_at`, orgID, ReconciliationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingReconciliation
	for rows.Next() {
		var p PendingReconciliation
		if err := rows.Scan(&p.ID, &p.OrgID, &p.PlanID, &p.PaymentID, &p.Amount, &p.Status, &p.MatchedBy, &p.MatchedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlan loads a plan with its full schedule.
func (r *Repository) GetPlan(ctx context.Context, orgID int64, id uuid.UUID) (Plan, []Installment, error) {
	var plan Plan
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, customer_id, invoice_id, total_amount, down_payment, advance_balance, status, created_at, updated_at
FROM installment_plans WHERE org_id=$1 AND id=$2`, orgID, id).
		Scan(&plan.ID, &plan.OrgID, &plan.CustomerID, &plan.InvoiceID, &plan.TotalAmount, &plan.DownPayment,
			&plan.AdvanceBalance, &plan.Status, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, nil, ErrNotFound
		}
		return Plan{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, plan_id, seq_no, due_date, principal, interest, total, paid_amount, status
FROM installments WHERE plan_id=$1 ORDER BY seq_no`, id)
	if err != nil {
		return Plan{}, nil, err
	}
	defer rows.Close()
	schedule, err := scanInstallments(rows)
	if err != nil {
		return Plan{}, nil, err
	}
	return plan, schedule, nil
}

// UpdatePendingStatus flags a queued reconciliation without touching the plan.
func (r *Repository) UpdatePendingStatus(ctx context.Context, orgID int64, id uuid.UUID, status ReconciliationStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE pending_reconciliations SET status=$3 WHERE org_id=$1 AND id=$2`,
		orgID, id, status)
	return err
}

// MarkOverdueInstallments flips unpaid installments past due on active plans
// to OVERDUE and returns how many changed.
func (r *Repository) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE installments i SET status=$1
FROM installment_plans p
WHERE i.plan_id = p.id AND p.status = $2
  AND i.due_date < $3 AND i.paid_amount < i.total AND i.status IN ($4, $5)`,
		InstallmentOverdue, PlanActive, asOf, InstallmentPending, InstallmentPartial)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkDefaultedPlans flips active plans carrying an installment overdue since
// before the cutoff to DEFAULTED and returns how many changed.
func (r *Repository) MarkDefaultedPlans(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE installment_plans SET status=$1, updated_at=now()
WHERE status=$2 AND EXISTS (
  SELECT 1 FROM installments i
  WHERE i.plan_id = installment_plans.id AND i.status=$3 AND i.due_date < $4)`,
		PlanDefaulted, PlanActive, InstallmentOverdue, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanInstallments(rows pgx.Rows) ([]Installment, error) {
	var out []Installment
	for rows.Next() {
		var i Installment
		if err := rows.Scan(&i.ID, &i.PlanID, &i.SeqNo, &i.DueDate, &i.Principal, &i.Interest, &i.Total, &i.PaidAmount, &i.Status); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
