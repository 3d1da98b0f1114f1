package reports

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleAccounts() []AccountBalance {
	return []AccountBalance{
		{Code: "1100", Name: "Accounts Receivable", Type: "ASSET", Debit: 1000, Credit: 300},
		{Code: "1000", Name: "Cash", Type: "ASSET", Debit: 300},
		{Code: "2200", Name: "Tax Payable", Type: "LIABILITY", Credit: 180},
		{Code: "4000", Name: "Sales", Type: "INCOME", Credit: 820},
		{Code: "5000", Name: "Freight", Type: "EXPENSE", Debit: 0, Credit: 0},
	}
}

func TestBuildTrialBalanceNetsToZero(t *testing.T) {
	tb := BuildTrialBalance(sampleAccounts())
	require.Len(t, tb.Rows, 5)
	require.Equal(t, "1000", tb.Rows[0].Code, "rows sorted by code")
	require.InDelta(t, 1300, tb.TotalDebit, 1e-9)
	require.InDelta(t, 1300, tb.TotalCredit, 1e-9)
	require.InDelta(t, 0, tb.Diff, 1e-9)
	require.True(t, tb.Balanced())
}

func TestBuildTrialBalanceFlagsImbalance(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "1000", Type: "ASSET", Debit: 100},
		{Code: "4000", Type: "INCOME", Credit: 99.90},
	})
	require.False(t, tb.Balanced())
	require.InDelta(t, 0.10, tb.Diff, 1e-9)
}

func TestBuildProfitAndLossNormalizesSides(t *testing.T) {
	pl := BuildProfitAndLoss([]AccountBalance{
		{Code: "4000", Name: "Sales", Type: "INCOME", Debit: 20, Credit: 820},
		{Code: "5000", Name: "Freight", Type: "EXPENSE", Debit: 150, Credit: 10},
		{Code: "1000", Name: "Cash", Type: "ASSET", Debit: 999},
	})
	require.Len(t, pl.Income.Accounts, 1)
	require.InDelta(t, 800, pl.Income.Total, 1e-9)
	require.InDelta(t, 140, pl.Expense.Total, 1e-9)
	require.InDelta(t, 660, pl.NetProfit, 1e-9)
}

func TestBuildBalanceSheetCarriesRetainedEarnings(t *testing.T) {
	bs := BuildBalanceSheet([]AccountBalance{
		{Code: "1000", Name: "Cash", Type: "ASSET", Debit: 300},
		{Code: "1100", Name: "AR", Type: "ASSET", Debit: 1000, Credit: 300},
		{Code: "2200", Name: "Tax Payable", Type: "LIABILITY", Credit: 180},
		{Code: "3000", Name: "Share Capital", Type: "EQUITY", Credit: 300},
	}, 820)
	require.InDelta(t, 1300, bs.Assets.Total, 1e-9)
	require.InDelta(t, 180, bs.Liabilities.Total, 1e-9)
	require.InDelta(t, 300, bs.Equity.Total, 1e-9)
	require.InDelta(t, 820, bs.RetainedEarnings, 1e-9)
	require.InDelta(t, 1120, bs.TotalEquity, 1e-9)
}
