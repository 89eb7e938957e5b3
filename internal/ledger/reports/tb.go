package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/money"
)

// AccountTotals aggregates posted debits and credits for one account.
type AccountTotals struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Kind   coa.AccountKind `json:"kind"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Net returns the account balance on its normal side.
func (a AccountTotals) Net() decimal.Decimal {
	if a.Kind.NormalBalance() == coa.SideDebit {
		return a.Debit.Sub(a.Credit)
	}
	return a.Credit.Sub(a.Debit)
}

// TrialBalance is the aggregation of all posted lines per account.
type TrialBalance struct {
	Rows        []AccountTotals `json:"rows"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// Balanced reports whether debit and credit totals agree within tolerance.
func (tb TrialBalance) Balanced() bool {
	return money.Equal(tb.TotalDebit, tb.TotalCredit)
}

// ByCode returns the row for an account code, zero totals when absent.
func (tb TrialBalance) ByCode(code string) AccountTotals {
	for _, row := range tb.Rows {
		if row.Code == code {
			return row
		}
	}
	return AccountTotals{Code: code}
}

// FoldTrialBalance folds every booked entry into per-account totals. A pure
// fold, not a running total, so it is idempotent and order-independent
// regardless of how historical entries were ingested.
//
// Voided entries stay in the fold: voiding marks the original and posts a
// reversal, and only the pair together nets the effect to zero. Dropping the
// original would count the reversal alone and flip every account it touched.
func FoldTrialBalance(chart *coa.Chart, entries []ledger.JournalEntry) TrialBalance {
	totals := make(map[string]*AccountTotals)
	for _, entry := range entries {
		if entry.Status != ledger.StatusPosted && entry.Status != ledger.StatusVoided {
			continue
		}
		for _, line := range entry.Lines {
			row, ok := totals[line.AccountCode]
			if !ok {
				row = &AccountTotals{Code: line.AccountCode}
				if acc, err := chart.Lookup(line.AccountCode); err == nil {
					row.Name = acc.Name
					row.Kind = acc.Kind
				}
				totals[line.AccountCode] = row
			}
			row.Debit = row.Debit.Add(line.Debit)
			row.Credit = row.Credit.Add(line.Credit)
		}
	}

	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	tb := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, code := range codes {
		row := totals[code]
		tb.Rows = append(tb.Rows, *row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	return tb
}
