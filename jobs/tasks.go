package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/balanza-erp/balanza-erp/internal/invoicing"
	jobmetrics "github.com/balanza-erp/balanza-erp/internal/jobs"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeInvoiceValidation resolves the external tax-authority verdict
	// for a submitted invoice.
	TaskTypeInvoiceValidation = "invoice:validate"
	// TaskTypeLedgerIntegrity scans the ledger for a trial-balance imbalance.
	TaskTypeLedgerIntegrity = "ledger:integrity"
)

// InvoiceValidationPayload identifies one validation attempt. The attempt id
// keeps a late result from a superseded submission from being applied.
type InvoiceValidationPayload struct {
	InvoiceID int64     `json:"invoice_id"`
	AttemptID uuid.UUID `json:"attempt_id"`
}

// NewInvoiceValidationTask constructs the Asynq task for one attempt.
func NewInvoiceValidationTask(payload InvoiceValidationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvoiceValidation, data), nil
}

// NewLedgerIntegrityTask constructs the nightly integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerIntegrity, nil)
}

// InvoiceResolver is the invoicing operation the validation task drives.
type InvoiceResolver interface {
	ResolveValidation(ctx context.Context, invoiceID int64, attemptID uuid.UUID) (invoicing.Invoice, error)
}

// NewInvoiceValidationHandler builds the Asynq handler for validation tasks.
// Stale or orphaned attempts are dropped without retry; anything else is
// retried by Asynq.
func NewInvoiceValidationHandler(resolver InvoiceResolver, timeout time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("invoice_validation")
		var payload InvoiceValidationPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		invoice, err := resolver.ResolveValidation(ctx, payload.InvoiceID, payload.AttemptID)
		if err != nil {
			if errors.Is(err, invoicing.ErrAttemptMismatch) || errors.Is(err, invoicing.ErrInvoiceNotFound) {
				logger.WarnContext(ctx, "dropping stale validation attempt",
					slog.Int64("invoice_id", payload.InvoiceID),
					slog.String("attempt_id", payload.AttemptID.String()))
				return tracker.End(asynq.SkipRetry)
			}
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.WarnContext(ctx, "dropping duplicate validation delivery",
					slog.Int64("invoice_id", payload.InvoiceID),
					slog.String("attempt_id", payload.AttemptID.String()))
				return tracker.End(asynq.SkipRetry)
			}
			logger.ErrorContext(ctx, "invoice validation task failed",
				slog.Int64("invoice_id", payload.InvoiceID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.InfoContext(ctx, "invoice validation resolved",
			slog.Int64("invoice_id", invoice.ID),
			slog.String("status", string(invoice.Status)),
			slog.String("validation", string(invoice.Validation)))
		return tracker.End(nil)
	}
}
