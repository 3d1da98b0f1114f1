package statements

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/reports"
)

// Repository aggregates ledger sums for statement composition.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AccountSums returns per-account debit/credit sums over the filtered lines.
// Accounts with no matching lines still appear, with zero sums, so statement
// shape stays stable across empty periods.
func (r *Repository) AccountSums(ctx context.Context, orgID int64, branchID *int64, from, to *time.Time) ([]reports.AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.code, a.name, a.type,
       COALESCE(SUM(l.debit) FILTER (WHERE ($2::bigint IS NULL OR l.branch_id=$2)
                AND ($3::timestamptz IS NULL OR l.date>=$3)
                AND ($4::timestamptz IS NULL OR l.date<=$4)), 0),
       COALESCE(SUM(l.credit) FILTER (WHERE ($2::bigint IS NULL OR l.branch_id=$2)
                AND ($3::timestamptz IS NULL OR l.date>=$3)
                AND ($4::timestamptz IS NULL OR l.date<=$4)), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
WHERE a.org_id=$1 AND NOT a.is_group
GROUP BY a.code, a.name, a.type
ORDER BY a.code`, orgID, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []reports.AccountBalance
	for rows.Next() {
		var acc reports.AccountBalance
		if err := rows.Scan(&acc.Code, &acc.Name, &acc.Type, &acc.Debit, &acc.Credit); err != nil {
			return nil, err
		}
		sums = append(sums, acc)
	}
	return sums, rows.Err()
}
