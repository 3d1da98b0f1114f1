package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryLedgerRepo struct {
	accounts *memoryAccountTx
	lines    []JournalLine
	nextID   int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{accounts: newMemoryAccountTx()}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := *r
	if err := fn(ctx, &memoryLedgerTx{repo: &staged}); err != nil {
		return err
	}
	*r = staged
	return nil
}

func (r *memoryLedgerRepo) ListLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) ([]JournalLine, error) {
	var out []JournalLine
	for _, line := range r.lines {
		if line.OrgID == orgID && line.RefType == refType && line.RefID == refID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) SumByOrg(ctx context.Context, orgID int64) (float64, float64, error) {
	var debit, credit float64
	for _, line := range r.lines {
		if line.OrgID == orgID {
			debit += line.Debit
			credit += line.Credit
		}
	}
	return debit, credit, nil
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func (tx *memoryLedgerTx) GetAccountByCode(ctx context.Context, orgID int64, code string) (Account, error) {
	return tx.repo.accounts.GetAccountByCode(ctx, orgID, code)
}

func (tx *memoryLedgerTx) InsertAccount(ctx context.Context, account Account) (Account, error) {
	return tx.repo.accounts.InsertAccount(ctx, account)
}

func (tx *memoryLedgerTx) InsertLines(ctx context.Context, lines []JournalLine) error {
	for _, line := range lines {
		tx.repo.nextID++
		line.ID = tx.repo.nextID
		tx.repo.lines = append(tx.repo.lines, line)
	}
	return nil
}

func (tx *memoryLedgerTx) DeleteLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) (int64, error) {
	kept := tx.repo.lines[:0]
	var removed int64
	for _, line := range tx.repo.lines {
		if line.OrgID == orgID && line.RefType == refType && line.RefID == refID {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	tx.repo.lines = kept
	return removed, nil
}

type bumpRecorder struct {
	orgs []int64
}

func (b *bumpRecorder) Bump(ctx context.Context, orgID int64) error {
	b.orgs = append(b.orgs, orgID)
	return nil
}

func TestPostLinesCommitsBalancedSet(t *testing.T) {
	repo := newMemoryLedgerRepo()
	bumps := &bumpRecorder{}
	svc := NewService(repo, nil, bumps)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })

	scope := shared.Scope{OrgID: 7, BranchID: 2, ActorID: 11}
	refID := uuid.New()
	lines, err := svc.PostLines(context.Background(), scope, Posting{
		RefType: RefTypeManual,
		RefID:   refID,
		Lines: []LineInput{
			{AccountID: 1, Debit: 250},
			{AccountID: 2, Credit: 250},
		},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.EqualValues(t, 2, *lines[0].BranchID)
	require.EqualValues(t, 11, lines[0].CreatedBy)

	stored, err := svc.LinesByReference(context.Background(), 7, RefTypeManual, refID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, []int64{7}, bumps.orgs)
}

func TestPostLinesRejectsBeforeAnyWrite(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	scope := shared.Scope{OrgID: 7, ActorID: 11}
	_, err := svc.PostLines(context.Background(), scope, Posting{
		RefType: RefTypeManual,
		RefID:   uuid.New(),
		Lines: []LineInput{
			{AccountID: 1, Debit: 250},
			{AccountID: 2, Credit: 100},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.lines)

	_, err = svc.PostLines(context.Background(), scope, Posting{
		RefType: RefTypeManual,
		Lines:   []LineInput{{AccountID: 1, Debit: 1}, {AccountID: 2, Credit: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
