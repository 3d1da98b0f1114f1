package statements

import (
	"encoding/csv"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/ledger/reports"
)

var amountPrinter = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

// WriteTrialBalanceCSV streams the trial balance as CSV.
func WriteTrialBalanceCSV(w io.Writer, tb reports.TrialBalance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Code", "Name", "Type", "Debit", "Credit", "Closing"}); err != nil {
		return err
	}
	for _, row := range tb.Rows {
		record := []string{row.Code, row.Name, row.Type,
			formatAmount(row.Debit), formatAmount(row.Credit), formatAmount(row.Closing)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"TOTAL", "", "", formatAmount(tb.TotalDebit), formatAmount(tb.TotalCredit), formatAmount(tb.Diff)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteProfitAndLossCSV streams the P&L as CSV.
func WriteProfitAndLossCSV(w io.Writer, pl reports.ProfitAndLoss) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Section", "Code", "Name", "Amount"}); err != nil {
		return err
	}
	for _, section := range []reports.ProfitAndLossSection{pl.Income, pl.Expense} {
		for _, acc := range section.Accounts {
			if err := cw.Write([]string{section.Label, acc.Code, acc.Name, formatAmount(acc.Amount)}); err != nil {
				return err
			}
		}
		if err := cw.Write([]string{section.Label, "", "TOTAL", formatAmount(section.Total)}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"", "", "NET PROFIT", formatAmount(pl.NetProfit)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
