package reports

import (
	"context"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

// LedgerPort is the read-only view of the journal the validator consumes.
// ListBooked must include voided entries alongside posted ones; the fold
// relies on each voided original being netted by its posted reversal.
type LedgerPort interface {
	ListBooked(ctx context.Context) ([]ledger.JournalEntry, error)
}

// Service computes trial balance and balance sheet reports. Pure read side:
// it never writes to the ledger.
type Service struct {
	ledger LedgerPort
	chart  *coa.Chart
	cache  *Cache
}

// NewService builds the report service. Cache may be nil.
func NewService(ledgerPort LedgerPort, chart *coa.Chart, cache *Cache) *Service {
	return &Service{ledger: ledgerPort, chart: chart, cache: cache}
}

// ComputeTrialBalance folds all booked entries into per-account totals.
func (s *Service) ComputeTrialBalance(ctx context.Context) (TrialBalance, error) {
	var tb TrialBalance
	err := s.cached(ctx, "reports:tb", &tb, func(ctx context.Context) (any, error) {
		entries, err := s.ledger.ListBooked(ctx)
		if err != nil {
			return nil, err
		}
		return FoldTrialBalance(s.chart, entries), nil
	})
	return tb, err
}

// ComputeBalanceSheet classifies account balances into the balance sheet equation.
func (s *Service) ComputeBalanceSheet(ctx context.Context) (BalanceSheet, error) {
	var bs BalanceSheet
	err := s.cached(ctx, "reports:bs", &bs, func(ctx context.Context) (any, error) {
		tb, err := s.ComputeTrialBalance(ctx)
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(tb), nil
	})
	return bs, err
}

// IsBalanced checks assets == liabilities + equity within tolerance.
func (s *Service) IsBalanced(ctx context.Context) (bool, error) {
	bs, err := s.ComputeBalanceSheet(ctx)
	if err != nil {
		return false, err
	}
	return bs.Balanced(), nil
}

func (s *Service) cached(ctx context.Context, keyBase string, dest any, loader func(context.Context) (any, error)) error {
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return copyJSON(value, dest)
	}
	key, err := s.cache.BuildKey(ctx, keyBase)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}
