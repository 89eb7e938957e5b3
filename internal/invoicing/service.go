package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/inventory"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// InventoryPort is the slice of the valuation engine the state machine drives.
type InventoryPort interface {
	ApplySaleBatch(ctx context.Context, lines []inventory.SaleLine, documentRef string) ([]inventory.Movement, []ledger.JournalEntry, error)
	ApplyInbound(ctx context.Context, input inventory.InboundInput) (inventory.Movement, ledger.JournalEntry, error)
	GetItemState(ctx context.Context, itemID int64) (inventory.Item, error)
}

// LedgerPort is the journal contract used for sale, payment and void entries.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
	Void(ctx context.Context, entryID int64) (ledger.JournalEntry, error)
}

// Dispatcher hands a submitted invoice to the asynchronous validation step.
type Dispatcher interface {
	Dispatch(ctx context.Context, invoiceID int64, attemptID uuid.UUID) error
}

// IdempotencyPort guards exactly-once application of validation results.
// Delete rolls a key back when processing fails after the claim.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RepositoryPort abstracts invoice persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
}

// TxRepository exposes invoice writes within a transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, invoice Invoice) error
}

// SaleRouting maps invoice postings to ledger accounts.
type SaleRouting struct {
	Receivable string
	Revenue    string
	IVAPayable string
	Cash       string
}

// DefaultSaleRouting uses the seed chart codes.
func DefaultSaleRouting() SaleRouting {
	return SaleRouting{
		Receivable: coa.AccountReceivable,
		Revenue:    coa.AccountSalesRevenue,
		IVAPayable: coa.AccountIVAPayable,
		Cash:       coa.AccountCash,
	}
}

// Config tunes service behavior.
type Config struct {
	// RestockOnVoid restores inventory when a submitted invoice is voided.
	// Off by default: some jurisdictions intentionally do not restock voided
	// sales, so the financial reversal alone mirrors the reference behavior.
	RestockOnVoid bool
}

// Service orchestrates the invoice lifecycle: creation, external validation,
// inventory application and journal posting. Per-invoice transitions are
// strictly sequential; the validation round-trip is the only async boundary.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	ledger      LedgerPort
	authority   Authority
	dispatcher  Dispatcher
	idempotency IdempotencyPort
	audit       AuditPort
	routing     SaleRouting
	cfg         Config
	locks       *shared.KeyedMutex
	now         func() time.Time
}

// NewService builds the invoice state machine.
func NewService(
	repo RepositoryPort,
	inventoryPort InventoryPort,
	ledgerPort LedgerPort,
	authority Authority,
	dispatcher Dispatcher,
	idempotency IdempotencyPort,
	audit AuditPort,
	routing SaleRouting,
	cfg Config,
) *Service {
	return &Service{
		repo:        repo,
		inventory:   inventoryPort,
		ledger:      ledgerPort,
		authority:   authority,
		dispatcher:  dispatcher,
		idempotency: idempotency,
		audit:       audit,
		routing:     routing,
		cfg:         cfg,
		locks:       shared.NewKeyedMutex(),
		now:         time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create persists a draft invoice with totals derived from its lines.
// Unit prices are tax-inclusive; the IVA component is back-calculated.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if len(input.Lines) == 0 {
		return Invoice{}, ErrEmptyInvoice
	}
	var total decimal.Decimal
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		if !in.Quantity.IsPositive() || in.UnitPrice.IsNegative() || in.Discount.IsNegative() {
			return Invoice{}, fmt.Errorf("invoicing: invalid line for item %d", in.ItemID)
		}
		line := InvoiceLine{
			ItemID:    in.ItemID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Discount:  in.Discount,
		}
		lines = append(lines, line)
		total = total.Add(line.Amount())
	}
	breakdown := BreakdownTotal(total)

	invoice := Invoice{
		Number:     input.Number,
		Client:     input.Client,
		Date:       input.Date,
		DueDate:    input.DueDate,
		Lines:      lines,
		Subtotal:   breakdown.Subtotal,
		TaxAmount:  breakdown.IVA,
		Total:      breakdown.Total,
		Status:     StatusDraft,
		Validation: ValidationPending,
	}
	if invoice.Date.IsZero() {
		invoice.Date = s.now()
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertInvoice(ctx, invoice)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "invoice.create", created, nil)
	return created, nil
}

// Submit parks a draft invoice in Submitted/Pending and hands it to the
// external validation collaborator. The verdict arrives asynchronously via
// ResolveValidation.
func (s *Service) Submit(ctx context.Context, invoiceID int64) (Invoice, error) {
	key := invoiceLockKey(invoiceID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var submitted Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != StatusDraft {
			return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, invoice.Status)
		}
		invoice.Status = StatusSubmitted
		invoice.Validation = ValidationPending
		invoice.RejectionReason = ""
		invoice.AttemptID = uuid.New()
		if err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		submitted = invoice
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, submitted.ID, submitted.AttemptID); err != nil {
			return Invoice{}, fmt.Errorf("invoicing: dispatch validation: %w", err)
		}
	}
	s.recordAudit(ctx, "invoice.submit", submitted, map[string]any{"attempt_id": submitted.AttemptID.String()})
	return submitted, nil
}

// ResolveValidation runs the external validation for a pending attempt and
// applies the verdict. Called from the background worker.
func (s *Service) ResolveValidation(ctx context.Context, invoiceID int64, attemptID uuid.UUID) (Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	result, err := s.authority.Validate(ctx, invoice)
	if err != nil {
		return Invoice{}, err
	}
	return s.ApplyValidationResult(ctx, invoiceID, attemptID, result)
}

// ApplyValidationResult applies an Accepted/Rejected verdict exactly once per
// (invoice, attempt). A stale or duplicate attempt is a no-op error; the
// caller may have abandoned the wait, the verdict still lands here once.
func (s *Service) ApplyValidationResult(ctx context.Context, invoiceID int64, attemptID uuid.UUID, result ValidationResult) (Invoice, error) {
	releaseClaim := func() {}
	if s.idempotency != nil {
		idemKey := fmt.Sprintf("invoice:%d:attempt:%s", invoiceID, attemptID)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "invoicing"); err != nil {
			return Invoice{}, err
		}
		// The key marks a fully applied verdict. On failure before that point
		// it is rolled back, otherwise every retry would bounce off the claim
		// of its own failed predecessor.
		releaseClaim = func() { _ = s.idempotency.Delete(ctx, idemKey) }
	}

	key := invoiceLockKey(invoiceID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		// A retry may find the acceptance already committed but the sale not
		// yet applied; that state resumes instead of being rejected.
		resuming := result.Outcome == ValidationAccepted &&
			invoice.Status == StatusSubmitted &&
			invoice.Validation == ValidationAccepted &&
			invoice.SaleEntryID == nil
		if !resuming && (invoice.Status != StatusSubmitted || invoice.Validation != ValidationPending) {
			return fmt.Errorf("%w: validation result in %s/%s", ErrInvalidTransition, invoice.Status, invoice.Validation)
		}
		if invoice.AttemptID != attemptID {
			return ErrAttemptMismatch
		}
		if result.Outcome == ValidationRejected {
			// Back to draft for correction; a re-submission starts a fresh attempt.
			invoice.Status = StatusDraft
			invoice.Validation = ValidationRejected
			invoice.RejectionReason = result.Reason
			if err := tx.UpdateInvoice(ctx, invoice); err != nil {
				return err
			}
			updated = invoice
			return nil
		}
		invoice.Validation = ValidationAccepted
		if err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		releaseClaim()
		return Invoice{}, err
	}

	if updated.Validation == ValidationAccepted && updated.SaleEntryID == nil {
		applied, err := s.applyAcceptedSale(ctx, updated)
		if err != nil {
			// A shortage consumed the verdict: the invoice is back in draft
			// with the reason recorded, so the claim stands. Anything else
			// left the verdict unapplied and must free the key for a retry.
			if !errors.Is(err, ErrStockShortage) {
				releaseClaim()
			}
			return Invoice{}, err
		}
		updated = applied
	}
	s.recordAudit(ctx, "invoice.validation", updated, map[string]any{
		"outcome": string(result.Outcome),
		"reason":  result.Reason,
	})
	return updated, nil
}

// applyAcceptedSale issues stock for every line as one atomic batch, then
// posts the revenue entry: Dr Receivable total, Cr Revenue subtotal,
// Cr IVA Payable for the tax component.
func (s *Service) applyAcceptedSale(ctx context.Context, invoice Invoice) (Invoice, error) {
	saleLines := make([]inventory.SaleLine, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		saleLines = append(saleLines, inventory.SaleLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	_, _, err := s.inventory.ApplySaleBatch(ctx, saleLines, invoice.Number)
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			// The batch is all-or-nothing: no stock or journal effect exists.
			// Park the invoice back in draft with a diagnosable reason.
			rerr := s.revertToDraft(ctx, invoice.ID, fmt.Sprintf("stock shortage: %v", err))
			if rerr != nil {
				return Invoice{}, rerr
			}
			return Invoice{}, fmt.Errorf("%w: %v", ErrStockShortage, err)
		}
		return Invoice{}, err
	}

	entry, err := s.ledger.Post(ctx, ledger.PostingInput{
		Date:        s.now(),
		Memo:        fmt.Sprintf("Sale invoice %s", invoice.Number),
		ReferenceID: invoice.Number,
		Origin:      ledger.OriginSale,
		SourceID:    uuid.New(),
		Lines: []ledger.LineInput{
			{AccountCode: s.routing.Receivable, Debit: invoice.Total},
			{AccountCode: s.routing.Revenue, Credit: invoice.Subtotal},
			{AccountCode: s.routing.IVAPayable, Credit: invoice.TaxAmount},
		},
	})
	if err != nil {
		return Invoice{}, err
	}

	var updated Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, invoice.ID)
		if err != nil {
			return err
		}
		current.SaleEntryID = &entry.ID
		if err := tx.UpdateInvoice(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// MarkPaid settles an accepted invoice: Dr Cash / Cr Receivable for the total.
func (s *Service) MarkPaid(ctx context.Context, invoiceID int64) (Invoice, error) {
	key := invoiceLockKey(invoiceID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var paid Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != StatusSubmitted || invoice.Validation != ValidationAccepted {
			return fmt.Errorf("%w: pay from %s/%s", ErrInvalidTransition, invoice.Status, invoice.Validation)
		}
		entry, err := s.ledger.Post(ctx, ledger.PostingInput{
			Date:        s.now(),
			Memo:        fmt.Sprintf("Payment for invoice %s", invoice.Number),
			ReferenceID: invoice.Number,
			Origin:      ledger.OriginSale,
			SourceID:    uuid.New(),
			Lines: []ledger.LineInput{
				{AccountCode: s.routing.Cash, Debit: invoice.Total},
				{AccountCode: s.routing.Receivable, Credit: invoice.Total},
			},
		})
		if err != nil {
			return err
		}
		invoice.Status = StatusPaid
		invoice.PaymentEntryID = &entry.ID
		if err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		paid = invoice
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "invoice.paid", paid, nil)
	return paid, nil
}

// Void cancels an invoice that is not yet paid. The sale entry, when present,
// is reversed through the journal; inventory restock follows Config.RestockOnVoid.
func (s *Service) Void(ctx context.Context, invoiceID int64) (Invoice, error) {
	key := invoiceLockKey(invoiceID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var voided Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == StatusPaid || invoice.Status == StatusVoided {
			return fmt.Errorf("%w: void from %s", ErrInvalidTransition, invoice.Status)
		}
		if invoice.SaleEntryID != nil {
			if _, err := s.ledger.Void(ctx, *invoice.SaleEntryID); err != nil {
				return err
			}
		}
		invoice.Status = StatusVoided
		if err := tx.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		voided = invoice
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if s.cfg.RestockOnVoid && voided.SaleEntryID != nil {
		for _, line := range voided.Lines {
			item, err := s.inventory.GetItemState(ctx, line.ItemID)
			if err != nil {
				return Invoice{}, err
			}
			if _, _, err := s.inventory.ApplyInbound(ctx, inventory.InboundInput{
				ItemID:      line.ItemID,
				Quantity:    line.Quantity,
				UnitCost:    item.AverageCost,
				Reason:      inventory.ReasonReturnIn,
				DocumentRef: voided.Number,
			}); err != nil {
				return Invoice{}, err
			}
		}
	}
	s.recordAudit(ctx, "invoice.void", voided, nil)
	return voided, nil
}

// GetInvoiceState returns the current invoice with lines.
func (s *Service) GetInvoiceState(ctx context.Context, invoiceID int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

// List returns all invoices.
func (s *Service) List(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

func (s *Service) revertToDraft(ctx context.Context, invoiceID int64, reason string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		invoice.Status = StatusDraft
		invoice.Validation = ValidationRejected
		invoice.RejectionReason = reason
		return tx.UpdateInvoice(ctx, invoice)
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, invoice Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = invoice.Number
	meta["status"] = string(invoice.Status)
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", invoice.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func invoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("invoicing:invoice:%d:lock", invoiceID)
}
