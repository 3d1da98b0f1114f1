// Package reports contains pure builders for financial statements. They take
// pre-aggregated per-account sums and never touch storage, so reporting calls
// either produce a complete statement or fail wholesale upstream.
package reports

import (
	"math"
	"sort"
)

// AccountBalance models an account with aggregated debit/credit sums.
type AccountBalance struct {
	Code   string
	Name   string
	Type   string
	Debit  float64
	Credit float64
}

// Closing computes the debit-normal closing balance for the account.
func (a AccountBalance) Closing() float64 {
	return a.Debit - a.Credit
}

// TrialBalanceRow is one account inside the trial balance.
type TrialBalanceRow struct {
	Code    string
	Name    string
	Type    string
	Debit   float64
	Credit  float64
	Closing float64
}

// TrialBalance is the per-account debit/credit report that must net to zero.
type TrialBalance struct {
	Rows        []TrialBalanceRow
	TotalDebit  float64
	TotalCredit float64
	Diff        float64
}

// Balanced reports whether the grand totals net to zero within tolerance.
func (tb TrialBalance) Balanced() bool {
	return math.Abs(tb.Diff) <= 0.01
}

// BuildTrialBalance converts account balances into a sorted trial balance.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	result := TrialBalance{}
	for _, acc := range accounts {
		row := TrialBalanceRow{
			Code:    acc.Code,
			Name:    acc.Name,
			Type:    acc.Type,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		}
		result.Rows = append(result.Rows, row)
		result.TotalDebit += row.Debit
		result.TotalCredit += row.Credit
	}
	sort.Slice(result.Rows, func(i, j int) bool {
		return result.Rows[i].Code < result.Rows[j].Code
	})
	result.Diff = result.TotalDebit - result.TotalCredit
	return result
}
