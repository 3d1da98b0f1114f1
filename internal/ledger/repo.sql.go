package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	AccountTx
	InsertLines(ctx context.Context, lines []JournalLine) error
	DeleteLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Querier is satisfied by both pgx.Tx and pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountStore gives other modules account resolution over an arbitrary
// querier, so they can join the account directory into their own scope.
type AccountStore struct {
	q Querier
}

// NewAccountStore wraps a querier (pool or in-flight transaction).
func NewAccountStore(q Querier) *AccountStore {
	return &AccountStore{q: q}
}

// GetAccountByCode loads an account by per-org code.
func (s *AccountStore) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	var a Account
	err := s.q.QueryRow(ctx, `SELECT id, org_id, code, name, type, is_group, cached_balance, created_at, updated_at
FROM accounts WHERE org_id=$1 AND code=$2`, orgID, code).
		Scan(&a.ID, &a.OrgID, &a.Code, &a.Name, &a.Type, &a.IsGroup, &a.CachedBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// InsertAccount creates an account with zero balance.
func (s *AccountStore) InsertAccount(ctx context.Context, account Account) (Account, error) {
	row := s.q.QueryRow(ctx, `INSERT INTO accounts (org_id, code, name, type, is_group, cached_balance)
VALUES ($1,$2,$3,$4,$5,0) RETURNING id, created_at, updated_at`,
		account.OrgID, account.Code, account.Name, account.Type, account.IsGroup)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if pgErr, ok := asPgError(err); ok && pgErr.Code == "23505" {
			return Account{}, ErrAccountConflict
		}
		return Account{}, err
	}
	return account, nil
}

// InsertLines appends journal lines. Lines are never updated in place.
func (s *AccountStore) InsertLines(ctx context.Context, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := s.q.Exec(ctx, `INSERT INTO journal_lines (org_id, branch_id, account_id, customer_id, supplier_id, date, debit, credit, memo, ref_type, ref_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			line.OrgID, line.BranchID, line.AccountID, line.CustomerID, line.SupplierID,
			line.Date, line.Debit, line.Credit, line.Memo, line.RefType, line.RefID, line.CreatedBy); err != nil {
			return err
		}
	}
	return nil
}

// DeleteLinesByReference removes the posting set owned by one document.
// Only the reversal/rebooking path may call this; audit history of the
// delete lives in the replacement posting.
func (s *AccountStore) DeleteLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) (int64, error) {
	cmd, err := s.q.Exec(ctx, `DELETE FROM journal_lines WHERE org_id=$1 AND ref_type=$2 AND ref_id=$3`, orgID, refType, refID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	return NewAccountStore(r.tx).GetAccountByCode(ctx, orgID, code)
}

func (r *txRepository) InsertAccount(ctx context.Context, account Account) (Account, error) {
	return NewAccountStore(r.tx).InsertAccount(ctx, account)
}

func (r *txRepository) InsertLines(ctx context.Context, lines []JournalLine) error {
	return NewAccountStore(r.tx).InsertLines(ctx, lines)
}

func (r *txRepository) DeleteLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) (int64, error) {
	return NewAccountStore(r.tx).DeleteLinesByReference(ctx, orgID, refType, refID)
}

// ListLinesByReference returns all lines owned by a document, oldest first.
func (r *Repository) ListLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, org_id, branch_id, account_id, customer_id, supplier_id, date, debit, credit, memo, ref_type, ref_id, created_by, created_at
FROM journal_lines WHERE org_id=$1 AND ref_type=$2 AND ref_id=$3 ORDER BY id ASC`, orgID, refType, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

// SumByOrg returns all-time debit and credit sums for one organization.
func (r *Repository) SumByOrg(ctx context.Context, orgID int64) (float64, float64, error) {
	var debit, credit float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM journal_lines WHERE org_id=$1`, orgID).
		Scan(&debit, &credit)
	return debit, credit, err
}

// ListOrgIDs returns every organization that has posted at least one line.
func (r *Repository) ListOrgIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT org_id FROM journal_lines ORDER BY org_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanLines(rows pgx.Rows) ([]JournalLine, error) {
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.OrgID, &line.BranchID, &line.AccountID, &line.CustomerID, &line.SupplierID,
			&line.Date, &line.Debit, &line.Credit, &line.Memo, &line.RefType, &line.RefID, &line.CreatedBy, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
