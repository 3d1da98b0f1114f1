package backfill

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/posting"
)

// Repository selects line-less documents and opens write scopes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*ledger.AccountStore
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("backfill repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{AccountStore: ledger.NewAccountStore(tx)})
	})
}

const missingLines = `NOT EXISTS (
  SELECT 1 FROM journal_lines l WHERE l.org_id=d.org_id AND l.ref_type=$2 AND l.ref_id=d.id)`

// ListInvoicesWithoutLines returns posted invoices owning no journal lines.
func (r *Repository) ListInvoicesWithoutLines(ctx context.Context, orgID int64) ([]posting.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.org_id, d.branch_id, d.customer_id, d.number, d.grand_total, d.tax_amount, d.status, d.date, d.items, d.created_by
FROM invoices d WHERE d.org_id=$1 AND d.status='POSTED' AND `+missingLines+` ORDER BY d.date`, orgID, ledger.RefTypeInvoice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.Invoice
	for rows.Next() {
		var inv posting.Invoice
		var items []byte
		if err := rows.Scan(&inv.ID, &inv.OrgID, &inv.BranchID, &inv.CustomerID, &inv.Number, &inv.GrandTotal, &inv.TaxAmount, &inv.Status, &inv.Date, &items, &inv.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &inv.Items); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPurchasesWithoutLines returns posted purchases owning no journal lines.
func (r *Repository) ListPurchasesWithoutLines(ctx context.Context, orgID int64) ([]posting.Purchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.org_id, d.branch_id, d.supplier_id, d.number, d.grand_total, d.status, d.date, d.items, d.created_by
FROM purchases d WHERE d.org_id=$1 AND d.status='POSTED' AND `+missingLines+` ORDER BY d.date`, orgID, ledger.RefTypePurchase)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.Purchase
	for rows.Next() {
		var p posting.Purchase
		var items []byte
		if err := rows.Scan(&p.ID, &p.OrgID, &p.BranchID, &p.SupplierID, &p.Number, &p.GrandTotal, &p.Status, &p.Date, &items, &p.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &p.Items); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPaymentsWithoutLines returns posted payments owning no journal lines.
func (r *Repository) ListPaymentsWithoutLines(ctx context.Context, orgID int64) ([]posting.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.org_id, d.branch_id, d.direction, d.customer_id, d.supplier_id, d.invoice_id, d.amount, d.method, d.via, d.status, d.date, d.created_by
FROM payments d WHERE d.org_id=$1 AND d.status='POSTED' AND `+missingLines+` ORDER BY d.date`, orgID, ledger.RefTypePayment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.Payment
	for rows.Next() {
		var p posting.Payment
		if err := rows.Scan(&p.ID, &p.OrgID, &p.BranchID, &p.Direction, &p.CustomerID, &p.SupplierID, &p.InvoiceID, &p.Amount, &p.Method, &p.Via, &p.Status, &p.Date, &p.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAdjustmentsWithoutLines returns posted adjustments owning no lines.
func (r *Repository) ListAdjustmentsWithoutLines(ctx context.Context, orgID int64) ([]posting.StockAdjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.org_id, d.branch_id, d.product_id, d.direction, d.qty, d.unit_cost, d.cost_value, d.note, d.status, d.date, d.created_by
FROM stock_adjustments d WHERE d.org_id=$1 AND d.status='POSTED' AND `+missingLines+` ORDER BY d.date`, orgID, ledger.RefTypeAdjustment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.StockAdjustment
	for rows.Next() {
		var adj posting.StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.OrgID, &adj.BranchID, &adj.ProductID, &adj.Direction, &adj.Qty, &adj.UnitCost, &adj.CostValue, &adj.Note, &adj.Status, &adj.Date, &adj.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}
