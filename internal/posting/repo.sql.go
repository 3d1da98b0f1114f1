package posting

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists business documents and their operational state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
	*ledger.AccountStore
}

// WithTx executes fn within a repeatable-read transaction spanning the
// ledger and every document store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("posting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, AccountStore: ledger.NewAccountStore(tx)})
	})
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	var items []byte
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, branch_id, customer_id, number, grand_total, tax_amount, status, date, items, created_by, created_at, updated_at
FROM invoices WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id).
		Scan(&inv.ID, &inv.OrgID, &inv.BranchID, &inv.CustomerID, &inv.Number, &inv.GrandTotal, &inv.TaxAmount,
			&inv.Status, &inv.Date, &items, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrDocumentNotFound
		}
		return Invoice{}, err
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO invoices (id, org_id, branch_id, customer_id, number, grand_total, tax_amount, status, date, items, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.OrgID, inv.BranchID, inv.CustomerID, inv.Number, inv.GrandTotal, inv.TaxAmount, inv.Status, inv.Date, items, inv.CreatedBy)
	return err
}

func (r *txRepository) UpdateInvoiceFinancials(ctx context.Context, inv Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE invoices SET number=$3, grand_total=$4, tax_amount=$5, date=$6, items=$7, updated_at=now()
WHERE org_id=$1 AND id=$2`, inv.OrgID, inv.ID, inv.Number, inv.GrandTotal, inv.TaxAmount, inv.Date, items)
	return err
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$3, updated_at=now() WHERE org_id=$1 AND id=$2`, orgID, id, status)
	return err
}

func (r *txRepository) GetPurchaseForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Purchase, error) {
	var p Purchase
	var items []byte
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, branch_id, supplier_id, number, grand_total, status, date, items, created_by, created_at, updated_at
FROM purchases WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id).
		Scan(&p.ID, &p.OrgID, &p.BranchID, &p.SupplierID, &p.Number, &p.GrandTotal,
			&p.Status, &p.Date, &items, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrDocumentNotFound
		}
		return Purchase{}, err
	}
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func (r *txRepository) InsertPurchase(ctx context.Context, p Purchase) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO purchases (id, org_id, branch_id, supplier_id, number, grand_total, status, date, items, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.OrgID, p.BranchID, p.SupplierID, p.Number, p.GrandTotal, p.Status, p.Date, items, p.CreatedBy)
	return err
}

func (r *txRepository) UpdatePurchaseFinancials(ctx context.Context, p Purchase) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE purchases SET number=$3, grand_total=$4, date=$5, items=$6, updated_at=now()
WHERE org_id=$1 AND id=$2`, p.OrgID, p.ID, p.Number, p.GrandTotal, p.Date, items)
	return err
}

func (r *txRepository) UpdatePurchaseStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchases SET status=$3, updated_at=now() WHERE org_id=$1 AND id=$2`, orgID, id, status)
	return err
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, orgID int64, id uuid.UUID) (Payment, error) {
	var p Payment
	err := r.tx.QueryRow(ctx, `SELECT id, org_id, branch_id, direction, customer_id, supplier_id, invoice_id, amount, method, via, status, date, created_by, created_at, updated_at
FROM payments WHERE org_id=$1 AND id=$2 FOR UPDATE`, orgID, id).
		Scan(&p.ID, &p.OrgID, &p.BranchID, &p.Direction, &p.CustomerID, &p.SupplierID, &p.InvoiceID,
			&p.Amount, &p.Method, &p.Via, &p.Status, &p.Date, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrDocumentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (id, org_id, branch_id, direction, customer_id, supplier_id, invoice_id, amount, method, via, status, date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.OrgID, p.BranchID, p.Direction, p.CustomerID, p.SupplierID, p.InvoiceID, p.Amount, p.Method, p.Via, p.Status, p.Date, p.CreatedBy)
	return err
}

func (r *txRepository) UpdatePaymentStatus(ctx context.Context, orgID int64, id uuid.UUID, status DocumentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET status=$3, updated_at=now() WHERE org_id=$1 AND id=$2`, orgID, id, status)
	return err
}

func (r *txRepository) InsertStockAdjustment(ctx context.Context, adj StockAdjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_adjustments (id, org_id, branch_id, product_id, direction, qty, unit_cost, cost_value, note, status, date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		adj.ID, adj.OrgID, adj.BranchID, adj.ProductID, adj.Direction, adj.Qty, adj.UnitCost, adj.CostValue, adj.Note, adj.Status, adj.Date, adj.CreatedBy)
	return err
}

// GetStockForUpdate row-locks one product's branch balance. A product with
// no recorded movement yet reads as a zero balance.
func (r *txRepository) GetStockForUpdate(ctx context.Context, orgID, branchID, productID int64) (inventory.Balance, error) {
	b := inventory.Balance{OrgID: orgID, BranchID: branchID, ProductID: productID}
	err := r.tx.QueryRow(ctx, `SELECT qty, avg_cost FROM stock_balances
WHERE org_id=$1 AND branch_id=$2 AND product_id=$3 FOR UPDATE`, orgID, branchID, productID).
		Scan(&b.Qty, &b.AvgCost)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return inventory.Balance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, balance inventory.Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (org_id, branch_id, product_id, qty, avg_cost)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (org_id, branch_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, avg_cost=EXCLUDED.avg_cost, updated_at=now()`,
		balance.OrgID, balance.BranchID, balance.ProductID, balance.Qty, balance.AvgCost)
	return err
}

func (r *txRepository) AdjustCustomerBalance(ctx context.Context, orgID, customerID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE customers SET balance = ROUND((balance + $3)::numeric, 2), updated_at=now()
WHERE org_id=$1 AND id=$2`, orgID, customerID, delta)
	return err
}

func (r *txRepository) AdjustSupplierBalance(ctx context.Context, orgID, supplierID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE suppliers SET balance = ROUND((balance + $3)::numeric, 2), updated_at=now()
WHERE org_id=$1 AND id=$2`, orgID, supplierID, delta)
	return err
}
