package reports

import (
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/money"
)

// BalanceSheetRow summarises one account inside a section.
type BalanceSheetRow struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and total for a classification.
type BalanceSheetSection struct {
	Label string            `json:"label"`
	Rows  []BalanceSheetRow `json:"rows"`
	Total decimal.Decimal   `json:"total"`
}

// BalanceSheet is the classified statement built from the trial balance.
// Current-period net income (revenue less expenses) is folded into equity so
// the accounting identity holds without a period-close step.
type BalanceSheet struct {
	Assets      BalanceSheetSection `json:"assets"`
	Liabilities BalanceSheetSection `json:"liabilities"`
	Equity      BalanceSheetSection `json:"equity"`
	NetIncome   decimal.Decimal     `json:"net_income"`
}

// Balanced reports whether assets equal liabilities plus equity within tolerance.
func (bs BalanceSheet) Balanced() bool {
	return money.Equal(bs.Assets.Total, bs.Liabilities.Total.Add(bs.Equity.Total))
}

// BuildBalanceSheet classifies trial balance rows by account kind.
func BuildBalanceSheet(tb TrialBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	var revenue, expenses decimal.Decimal

	for _, row := range tb.Rows {
		net := row.Net()
		out := BalanceSheetRow{Code: row.Code, Name: row.Name, Balance: net}
		switch row.Kind {
		case coa.KindAsset:
			assets.Rows = append(assets.Rows, out)
			assets.Total = assets.Total.Add(net)
		case coa.KindLiability:
			liabilities.Rows = append(liabilities.Rows, out)
			liabilities.Total = liabilities.Total.Add(net)
		case coa.KindEquity:
			equity.Rows = append(equity.Rows, out)
			equity.Total = equity.Total.Add(net)
		case coa.KindRevenue:
			revenue = revenue.Add(net)
		case coa.KindExpense:
			expenses = expenses.Add(net)
		}
	}

	netIncome := revenue.Sub(expenses)
	if !netIncome.IsZero() {
		equity.Rows = append(equity.Rows, BalanceSheetRow{Code: "", Name: "Current Earnings", Balance: netIncome})
	}
	equity.Total = equity.Total.Add(netIncome)

	return BalanceSheet{
		Assets:      assets,
		Liabilities: liabilities,
		Equity:      equity,
		NetIncome:   netIncome,
	}
}
