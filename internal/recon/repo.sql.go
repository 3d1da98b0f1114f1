package recon

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository reads ledger aggregates and persists check outcomes.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, ledger: ledger.NewRepository(pool)}
}

// ListOrgIDs delegates to the ledger store.
func (r *Repository) ListOrgIDs(ctx context.Context) ([]int64, error) {
	return r.ledger.ListOrgIDs(ctx)
}

// SumByOrg delegates to the ledger store.
func (r *Repository) SumByOrg(ctx context.Context, orgID int64) (float64, float64, error) {
	return r.ledger.SumByOrg(ctx, orgID)
}

// ListLinesByReference delegates to the ledger store.
func (r *Repository) ListLinesByReference(ctx context.Context, orgID int64, refType ledger.RefType, refID uuid.UUID) ([]ledger.JournalLine, error) {
	return r.ledger.ListLinesByReference(ctx, orgID, refType, refID)
}

// InsertOrgCheck stores one nightly check outcome.
func (r *Repository) InsertOrgCheck(ctx context.Context, check OrgCheck) (OrgCheck, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO recon_checks (org_id, debit, credit, diff, status, checked_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		check.OrgID, check.Debit, check.Credit, check.Diff, check.Status, check.CheckedAt).
		Scan(&check.ID)
	return check, err
}

// ListOrgChecks returns recent checks for one organization, newest first.
func (r *Repository) ListOrgChecks(ctx context.Context, orgID int64, limit int) ([]OrgCheck, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, debit, credit, diff, status, checked_at
FROM recon_checks WHERE org_id=$1 ORDER BY checked_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var checks []OrgCheck
	for rows.Next() {
		var check OrgCheck
		if err := rows.Scan(&check.ID, &check.OrgID, &check.Debit, &check.Credit, &check.Diff, &check.Status, &check.CheckedAt); err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

// ListPostedInvoices returns stored invoice totals, cancelled excluded.
func (r *Repository) ListPostedInvoices(ctx context.Context, orgID int64) ([]StoredDocument, error) {
	return r.listDocuments(ctx, `SELECT id, number, grand_total FROM invoices WHERE org_id=$1 AND status='POSTED'`, orgID)
}

// ListPostedPayments returns stored payment amounts, cancelled excluded.
func (r *Repository) ListPostedPayments(ctx context.Context, orgID int64) ([]StoredDocument, error) {
	return r.listDocuments(ctx, `SELECT id, COALESCE(method,''), amount FROM payments WHERE org_id=$1 AND status='POSTED'`, orgID)
}

func (r *Repository) listDocuments(ctx context.Context, sql string, orgID int64) ([]StoredDocument, error) {
	rows, err := r.pool.Query(ctx, sql, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []StoredDocument
	for rows.Next() {
		var doc StoredDocument
		if err := rows.Scan(&doc.ID, &doc.Number, &doc.Amount); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListCustomerBalances returns stored customer running balances.
func (r *Repository) ListCustomerBalances(ctx context.Context, orgID int64) ([]StoredParty, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, balance FROM customers WHERE org_id=$1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parties []StoredParty
	for rows.Next() {
		var party StoredParty
		if err := rows.Scan(&party.ID, &party.Name, &party.Balance); err != nil {
			return nil, err
		}
		parties = append(parties, party)
	}
	return parties, rows.Err()
}

// DerivedDocTotals sums ledger debits per reference of one document type.
func (r *Repository) DerivedDocTotals(ctx context.Context, orgID int64, refType ledger.RefType) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT ref_id, COALESCE(SUM(debit),0)
FROM journal_lines WHERE org_id=$1 AND ref_type=$2 GROUP BY ref_id`, orgID, refType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTotals[uuid.UUID](rows)
}

// DerivedCustomerBalances sums signed customer lines across the ledger.
func (r *Repository) DerivedCustomerBalances(ctx context.Context, orgID int64) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT customer_id, COALESCE(SUM(debit - credit),0)
FROM journal_lines WHERE org_id=$1 AND customer_id IS NOT NULL GROUP BY customer_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTotals[int64](rows)
}

func scanTotals[K comparable](rows pgx.Rows) (map[K]float64, error) {
	totals := map[K]float64{}
	for rows.Next() {
		var key K
		var total float64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, err
		}
		totals[key] = total
	}
	return totals, rows.Err()
}
