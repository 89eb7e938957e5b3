package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/balanza-erp/balanza-erp/internal/jobs"
	"github.com/balanza-erp/balanza-erp/internal/ledger/reports"
)

// TrialBalanceSource is the read-side report the integrity scan folds.
type TrialBalanceSource interface {
	ComputeTrialBalance(ctx context.Context) (reports.TrialBalance, error)
	ComputeBalanceSheet(ctx context.Context) (reports.BalanceSheet, error)
}

// NewLedgerIntegrityHandler builds the nightly scan: recompute the trial
// balance and balance sheet from the full posted-entry set and alert when
// either identity is broken. The scan never writes; an imbalance means a
// defect upstream, not something to repair automatically.
func NewLedgerIntegrityHandler(source TrialBalanceSource, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		return tracker.End(runIntegrityScan(ctx, source, metrics, logger))
	}
}

func runIntegrityScan(ctx context.Context, source TrialBalanceSource, metrics *jobmetrics.Metrics, logger *slog.Logger) error {
	tb, err := source.ComputeTrialBalance(ctx)
	if err != nil {
		return err
	}
	if !tb.Balanced() {
		metrics.AddImbalance()
		logger.ErrorContext(ctx, "ledger integrity violation: trial balance out of balance",
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
			slog.String("total_credit", tb.TotalCredit.StringFixed(2)))
	}
	bs, err := source.ComputeBalanceSheet(ctx)
	if err != nil {
		return err
	}
	if !bs.Balanced() {
		metrics.AddImbalance()
		logger.ErrorContext(ctx, "ledger integrity violation: accounting identity broken",
			slog.String("assets", bs.Assets.Total.StringFixed(2)),
			slog.String("liabilities", bs.Liabilities.Total.StringFixed(2)),
			slog.String("equity", bs.Equity.Total.StringFixed(2)))
	}
	if tb.Balanced() && bs.Balanced() {
		logger.InfoContext(ctx, "ledger integrity scan clean",
			slog.Int("accounts", len(tb.Rows)),
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)))
	}
	return nil
}
