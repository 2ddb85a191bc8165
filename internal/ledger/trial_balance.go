package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BuildTrialBalance aggregates account totals into trial balance rows ordered by code.
func BuildTrialBalance(asOf time.Time, totals []AccountTotal) TrialBalance {
	tb := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	rows := make([]TrialBalanceRow, 0, len(totals))
	for _, total := range totals {
		if total.Debit.IsZero() && total.Credit.IsZero() {
			continue
		}
		rows = append(rows, TrialBalanceRow{
			AccountID: total.Account.ID,
			Code:      total.Account.Code,
			Name:      total.Account.Name,
			Type:      total.Account.Type,
			Debit:     total.Debit,
			Credit:    total.Credit,
			Balance:   normalBalance(total.Account.NormalSide, total.Debit, total.Credit),
		})
		tb.TotalDebit = tb.TotalDebit.Add(total.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(total.Credit)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	tb.Rows = rows
	return tb
}
