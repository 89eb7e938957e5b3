package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCachedTrialBalanceServedWithoutRefold(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	fl := &fakeLedger{entries: sampleEntries()}
	svc := NewService(fl, chart, newTestCache(t))

	first, err := svc.ComputeTrialBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fl.calls)

	second, err := svc.ComputeTrialBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fl.calls, "second read must come from cache")
	require.True(t, second.TotalDebit.Equal(first.TotalDebit))
}

func TestBumpInvalidatesCachedReports(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	fl := &fakeLedger{entries: sampleEntries()}
	cache := newTestCache(t)
	svc := NewService(fl, chart, cache)

	_, err := svc.ComputeTrialBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fl.calls)

	// A ledger write bumps the version; the next read folds fresh data.
	fl.entries = append(fl.entries, entry(9, ledger.StatusPosted,
		dr(coa.AccountCash, "10.00"), cr(coa.AccountSalesRevenue, "10.00")))
	require.NoError(t, cache.Bump(context.Background()))

	tb, err := svc.ComputeTrialBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fl.calls)
	require.True(t, tb.ByCode(coa.AccountCash).Debit.Equal(dec("10.00")))
}

func TestBalanceSheetUsesVersionedKey(t *testing.T) {
	chart := coa.NewChart(coa.SeedAccounts())
	fl := &fakeLedger{entries: sampleEntries()}
	svc := NewService(fl, chart, newTestCache(t))

	bs, err := svc.ComputeBalanceSheet(context.Background())
	require.NoError(t, err)
	require.True(t, bs.Balanced())

	again, err := svc.ComputeBalanceSheet(context.Background())
	require.NoError(t, err)
	require.True(t, again.Assets.Total.Equal(bs.Assets.Total))
}
