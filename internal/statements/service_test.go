package statements

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/reports"
)

type stubSums struct {
	sums  []reports.AccountBalance
	calls int
	// captured filters from the last call
	branchID *int64
	from, to *time.Time
}

func (s *stubSums) AccountSums(_ context.Context, _ int64, branchID *int64, from, to *time.Time) ([]reports.AccountBalance, error) {
	s.calls++
	s.branchID = branchID
	s.from = from
	s.to = to
	return s.sums, nil
}

func sampleSums() []reports.AccountBalance {
	return []reports.AccountBalance{
		{Code: "1000", Name: "Cash", Type: "ASSET", Debit: 300, Credit: 0},
		{Code: "1100", Name: "Accounts Receivable", Type: "ASSET", Debit: 1000, Credit: 300},
		{Code: "2200", Name: "Tax Payable", Type: "LIABILITY", Debit: 0, Credit: 180},
		{Code: "4000", Name: "Sales", Type: "INCOME", Debit: 0, Credit: 820},
	}
}

func TestTrialBalanceNetsToZero(t *testing.T) {
	repo := &stubSums{sums: sampleSums()}
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })

	tb, err := svc.TrialBalance(context.Background(), 1, nil, time.Time{})
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.InDelta(t, 1300, tb.TotalDebit, 1e-9)
	require.InDelta(t, 1300, tb.TotalCredit, 1e-9)
	require.Nil(t, repo.from)
	require.NotNil(t, repo.to)
}

func TestProfitAndLossUsesRange(t *testing.T) {
	repo := &stubSums{sums: sampleSums()}
	svc := NewService(repo, nil)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	pl, err := svc.ProfitAndLoss(context.Background(), 1, nil, from, to)
	require.NoError(t, err)
	require.InDelta(t, 820, pl.Income.Total, 1e-9)
	require.InDelta(t, 820, pl.NetProfit, 1e-9)
	require.NotNil(t, repo.from)
	require.Equal(t, from, *repo.from)

	_, err = svc.ProfitAndLoss(context.Background(), 1, nil, to, from)
	require.ErrorIs(t, err, ErrEmptyRange)
}

func TestBalanceSheetFoldsRetainedEarnings(t *testing.T) {
	repo := &stubSums{sums: sampleSums()}
	svc := NewService(repo, nil)

	bs, err := svc.BalanceSheet(context.Background(), 1, nil, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.InDelta(t, 1000, bs.Assets.Total, 1e-9)
	require.InDelta(t, 180, bs.Liabilities.Total, 1e-9)
	require.InDelta(t, 820, bs.RetainedEarnings, 1e-9)
	require.InDelta(t, 820, bs.TotalEquity, 1e-9)
	// assets = liabilities + equity
	require.InDelta(t, bs.Assets.Total, bs.Liabilities.Total+bs.TotalEquity, 1e-9)
}

func TestBranchFilterPassesThrough(t *testing.T) {
	repo := &stubSums{sums: sampleSums()}
	svc := NewService(repo, nil)
	branch := int64(2)

	_, err := svc.TrialBalance(context.Background(), 1, &branch, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, repo.branchID)
	require.EqualValues(t, 2, *repo.branchID)
}

func TestWriteTrialBalanceCSV(t *testing.T) {
	tb := reports.BuildTrialBalance(sampleSums())
	var buf bytes.Buffer
	require.NoError(t, WriteTrialBalanceCSV(&buf, tb))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6) // header + 4 accounts + total
	require.Contains(t, lines[0], "Code,Name,Type,Debit,Credit,Closing")
	require.Contains(t, lines[len(lines)-1], "TOTAL")
	require.Contains(t, lines[len(lines)-1], "1,300.00")
}
