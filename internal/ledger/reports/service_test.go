package reports

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

type fakeLedger struct {
	entries []ledger.JournalEntry
	calls   int
}

func (f *fakeLedger) ListBooked(ctx context.Context) ([]ledger.JournalEntry, error) {
	f.calls++
	var out []ledger.JournalEntry
	for _, e := range f.entries {
		if e.Status == ledger.StatusPosted || e.Status == ledger.StatusVoided {
			out = append(out, e)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func entry(id int64, status ledger.EntryStatus, lines ...ledger.Line) ledger.JournalEntry {
	return ledger.JournalEntry{
		ID:     id,
		Number: id,
		Date:   time.Date(2026, 1, int(id), 0, 0, 0, 0, time.UTC),
		Status: status,
		Lines:  lines,
	}
}

func dr(code, amount string) ledger.Line {
	return ledger.Line{AccountCode: code, Debit: dec(amount)}
}

func cr(code, amount string) ledger.Line {
	return ledger.Line{AccountCode: code, Credit: dec(amount)}
}

// A purchase, a sale with its cost, and a collection. Every entry balances,
// so every fold over them must too.
func sampleEntries() []ledger.JournalEntry {
	return []ledger.JournalEntry{
		entry(1, ledger.StatusPosted,
			dr(coa.AccountInventory, "1000.00"), cr(coa.AccountPayable, "1000.00")),
		entry(2, ledger.StatusPosted,
			dr(coa.AccountReceivable, "1130.00"),
			cr(coa.AccountSalesRevenue, "1000.00"),
			cr(coa.AccountIVAPayable, "130.00")),
		entry(3, ledger.StatusPosted,
			dr(coa.AccountCOGS, "320.00"), cr(coa.AccountInventory, "320.00")),
		entry(4, ledger.StatusPosted,
			dr(coa.AccountBank, "1130.00"), cr(coa.AccountReceivable, "1130.00")),
	}
}

func TestTrialBalanceTotalsAlwaysBalance(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	tb := FoldTrialBalance(chart, sampleEntries())

	require.True(t, tb.Balanced())
	require.True(t, tb.TotalDebit.Equal(dec("3580.00")))
	require.True(t, tb.TotalCredit.Equal(dec("3580.00")))

	inv := tb.ByCode(coa.AccountInventory)
	require.True(t, inv.Debit.Equal(dec("1000.00")))
	require.True(t, inv.Credit.Equal(dec("320.00")))
	require.True(t, inv.Net().Equal(dec("680.00")))
}

func TestFoldIsOrderIndependent(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	entries := sampleEntries()

	forward := FoldTrialBalance(chart, entries)

	reversed := make([]ledger.JournalEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		reversed = append(reversed, entries[i])
	}
	backward := FoldTrialBalance(chart, reversed)

	require.Equal(t, forward, backward)

	// Folding twice over the same set yields the same result.
	require.Equal(t, forward, FoldTrialBalance(chart, entries))
}

func TestFoldVoidPairNetsToZero(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())

	// Exactly what a void leaves behind: the original marked VOIDED and a
	// posted reversal with the sides swapped.
	original := entry(5, ledger.StatusVoided,
		dr(coa.AccountReceivable, "1130.00"),
		cr(coa.AccountSalesRevenue, "1000.00"),
		cr(coa.AccountIVAPayable, "130.00"))
	reversal := entry(6, ledger.StatusPosted,
		cr(coa.AccountReceivable, "1130.00"),
		dr(coa.AccountSalesRevenue, "1000.00"),
		dr(coa.AccountIVAPayable, "130.00"))

	tb := FoldTrialBalance(chart, []ledger.JournalEntry{original, reversal})
	require.True(t, tb.Balanced())
	require.True(t, tb.ByCode(coa.AccountReceivable).Net().IsZero(),
		"receivable net after void pair = %s", tb.ByCode(coa.AccountReceivable).Net())
	require.True(t, tb.ByCode(coa.AccountSalesRevenue).Net().IsZero())
	require.True(t, tb.ByCode(coa.AccountIVAPayable).Net().IsZero())

	// A voided sale among live entries must not disturb the other accounts.
	full := FoldTrialBalance(chart, append(sampleEntries(), original, reversal))
	require.True(t, full.Balanced())
	require.True(t, full.ByCode(coa.AccountInventory).Net().Equal(dec("680.00")))
}

func TestFoldSkipsDraftEntries(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	entries := append(sampleEntries(),
		entry(5, ledger.StatusDraft, dr(coa.AccountCash, "5.00"), cr(coa.AccountSalesRevenue, "5.00")),
	)

	tb := FoldTrialBalance(chart, entries)
	require.True(t, tb.TotalDebit.Equal(dec("3580.00")))
	require.True(t, tb.ByCode(coa.AccountCash).Debit.IsZero())
}

func TestBalanceSheetFoldsNetIncomeIntoEquity(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	tb := FoldTrialBalance(chart, sampleEntries())
	bs := BuildBalanceSheet(tb)

	// Assets: bank 1130 + inventory 680. Liabilities: AP 1000 + IVA 130.
	require.True(t, bs.Assets.Total.Equal(dec("1810.00")), "assets=%s", bs.Assets.Total)
	require.True(t, bs.Liabilities.Total.Equal(dec("1130.00")))
	require.True(t, bs.NetIncome.Equal(dec("680.00")))
	require.True(t, bs.Equity.Total.Equal(dec("680.00")))
	require.True(t, bs.Balanced())
}

func TestServiceIsBalancedWithoutCache(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	fl := &fakeLedger{entries: sampleEntries()}
	svc := NewService(fl, chart, nil)

	ok, err := svc.IsBalanced(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestServiceDetectsCorruptedLedger(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	// An entry that should never exist: one-sided debit.
	fl := &fakeLedger{entries: []ledger.JournalEntry{
		entry(1, ledger.StatusPosted, dr(coa.AccountCash, "100.00")),
	}}
	svc := NewService(fl, chart, nil)

	tb, err := svc.ComputeTrialBalance(context.Background())
	require.NoError(t, err)
	require.False(t, tb.Balanced())

	ok, err := svc.IsBalanced(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
