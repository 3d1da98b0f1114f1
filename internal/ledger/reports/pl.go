package reports

import (
	"sort"
	"strings"
)

// ProfitAndLossAccount represents an income or expense account summary.
type ProfitAndLossAccount struct {
	Code   string
	Name   string
	Amount float64
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string
	Accounts []ProfitAndLossAccount
	Total    float64
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Income    ProfitAndLossSection
	Expense   ProfitAndLossSection
	NetProfit float64
}

// BuildProfitAndLoss aggregates accounts into income and expense sections.
// Income accounts are credit-normal, expense accounts debit-normal.
func BuildProfitAndLoss(accounts []AccountBalance) ProfitAndLoss {
	income := ProfitAndLossSection{Label: "Income"}
	expense := ProfitAndLossSection{Label: "Expense"}

	for _, acc := range accounts {
		switch strings.ToUpper(acc.Type) {
		case "INCOME", "REVENUE":
			row := ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: acc.Credit - acc.Debit}
			income.Accounts = append(income.Accounts, row)
			income.Total += row.Amount
		case "EXPENSE":
			row := ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: acc.Debit - acc.Credit}
			expense.Accounts = append(expense.Accounts, row)
			expense.Total += row.Amount
		}
	}

	sort.Slice(income.Accounts, func(i, j int) bool { return income.Accounts[i].Code < income.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		Income:    income,
		Expense:   expense,
		NetProfit: income.Total - expense.Total,
	}
}
