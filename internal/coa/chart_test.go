package coa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	accounts []Account
	err      error
}

func (p staticProvider) List(ctx context.Context) ([]Account, error) {
	return p.accounts, p.err
}

func TestChartLookupAndHas(t *testing.T) {
	chart := NewChart(SeedAccounts())

	acc, err := chart.Lookup(AccountInventory)
	require.NoError(t, err)
	require.Equal(t, "Inventory", acc.Name)
	require.Equal(t, KindAsset, acc.Kind)

	require.True(t, chart.Has(AccountCOGS))
	require.False(t, chart.Has("9999"))

	_, err = chart.Lookup("9999")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestChartSkipsInactiveAccounts(t *testing.T) {
	chart := NewChart([]Account{
		{Code: "1000", Name: "Active", Kind: KindAsset, IsActive: true},
		{Code: "1001", Name: "Retired", Kind: KindAsset, IsActive: false},
	})

	require.True(t, chart.Has("1000"))
	require.False(t, chart.Has("1001"))
	require.Len(t, chart.List(), 1)
}

func TestChartListOrderedByCode(t *testing.T) {
	chart := NewChart([]Account{
		{Code: "5101", Kind: KindExpense, IsActive: true},
		{Code: "1101", Kind: KindAsset, IsActive: true},
		{Code: "2101", Kind: KindLiability, IsActive: true},
	})

	list := chart.List()
	require.Equal(t, "1101", list[0].Code)
	require.Equal(t, "2101", list[1].Code)
	require.Equal(t, "5101", list[2].Code)
}

func TestLoadChartWrapsProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := LoadChart(context.Background(), staticProvider{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestNormalBalanceBySide(t *testing.T) {
	require.Equal(t, SideDebit, KindAsset.NormalBalance())
	require.Equal(t, SideDebit, KindExpense.NormalBalance())
	require.Equal(t, SideCredit, KindLiability.NormalBalance())
	require.Equal(t, SideCredit, KindEquity.NormalBalance())
	require.Equal(t, SideCredit, KindRevenue.NormalBalance())
}

func TestSeedChartCoversEveryKind(t *testing.T) {
	chart := NewChart(SeedAccounts())
	kinds := map[AccountKind]bool{}
	for _, acc := range chart.List() {
		kinds[acc.Kind] = true
	}
	for _, kind := range []AccountKind{KindAsset, KindLiability, KindEquity, KindRevenue, KindExpense} {
		require.True(t, kinds[kind], "missing kind %s", kind)
	}
}
