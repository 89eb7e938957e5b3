package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/inventory"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

type memoryRepo struct {
	invoices map[int64]Invoice
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: map[int64]Invoice{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	invoice, ok := r.invoices[invoiceID]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	for id := int64(1); id <= r.nextID; id++ {
		if invoice, ok := r.invoices[id]; ok {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	r.nextID++
	invoice.ID = r.nextID
	invoice.CreatedAt = time.Now()
	for i := range invoice.Lines {
		invoice.Lines[i].ID = int64(i + 1)
		invoice.Lines[i].InvoiceID = invoice.ID
	}
	r.invoices[invoice.ID] = invoice
	return invoice, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error) {
	return r.GetInvoice(ctx, invoiceID)
}

func (r *memoryRepo) UpdateInvoice(ctx context.Context, invoice Invoice) error {
	if _, ok := r.invoices[invoice.ID]; !ok {
		return ErrInvoiceNotFound
	}
	r.invoices[invoice.ID] = invoice
	return nil
}

// fakeInventory records batch applications and restocks. Shortage or scripted
// batch failures on demand.
type fakeInventory struct {
	batches   [][]inventory.SaleLine
	restocks  []inventory.InboundInput
	items     map[int64]inventory.Item
	shortage  bool
	batchErrs []error
}

func (f *fakeInventory) ApplySaleBatch(ctx context.Context, lines []inventory.SaleLine, documentRef string) ([]inventory.Movement, []ledger.JournalEntry, error) {
	if f.shortage {
		return nil, nil, inventory.ErrInsufficientStock
	}
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		f.batchErrs = f.batchErrs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	f.batches = append(f.batches, lines)
	return nil, nil, nil
}

func (f *fakeInventory) ApplyInbound(ctx context.Context, input inventory.InboundInput) (inventory.Movement, ledger.JournalEntry, error) {
	f.restocks = append(f.restocks, input)
	return inventory.Movement{}, ledger.JournalEntry{}, nil
}

func (f *fakeInventory) GetItemState(ctx context.Context, itemID int64) (inventory.Item, error) {
	if item, ok := f.items[itemID]; ok {
		return item, nil
	}
	return inventory.Item{ID: itemID, AverageCost: dec("10.00")}, nil
}

type fakeLedger struct {
	nextID int64
	posted []ledger.JournalEntry
	voided []int64
}

func (f *fakeLedger) Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error) {
	f.nextID++
	entry := ledger.JournalEntry{ID: f.nextID, Memo: input.Memo, Status: ledger.StatusPosted, Origin: input.Origin}
	for _, l := range input.Lines {
		entry.Lines = append(entry.Lines, ledger.Line{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit})
	}
	f.posted = append(f.posted, entry)
	return entry, nil
}

func (f *fakeLedger) Void(ctx context.Context, entryID int64) (ledger.JournalEntry, error) {
	f.voided = append(f.voided, entryID)
	return ledger.JournalEntry{ReversalOf: &entryID, Origin: ledger.OriginReversal}, nil
}

type fakeDispatcher struct {
	attempts []uuid.UUID
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, invoiceID int64, attemptID uuid.UUID) error {
	f.attempts = append(f.attempts, attemptID)
	return nil
}

type fakeIdempotency struct {
	seen map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.seen, key)
	return nil
}

// verdict is a scripted Authority for driving the state machine directly.
type verdict struct {
	result ValidationResult
}

func (v verdict) Validate(ctx context.Context, invoice Invoice) (ValidationResult, error) {
	return v.result, nil
}

type fixture struct {
	repo       *memoryRepo
	inv        *fakeInventory
	fl         *fakeLedger
	dispatcher *fakeDispatcher
	svc        *Service
}

func newFixture(authority Authority, cfg Config) *fixture {
	f := &fixture{
		repo:       newMemoryRepo(),
		inv:        &fakeInventory{},
		fl:         &fakeLedger{},
		dispatcher: &fakeDispatcher{},
	}
	f.svc = NewService(f.repo, f.inv, f.fl, authority, f.dispatcher, &fakeIdempotency{}, nil, DefaultSaleRouting(), cfg)
	return f
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func draftInput() CreateInput {
	return CreateInput{
		Number: "INV-0001",
		Client: "Comercial Rivera",
		Date:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{ItemID: 1, Quantity: dec("2"), UnitPrice: dec("500.00")},
			{ItemID: 2, Quantity: dec("1"), UnitPrice: dec("130.00")},
		},
	}
}

// Creates, submits and accepts an invoice, returning it in Submitted/Accepted.
func acceptedInvoice(t *testing.T, f *fixture) Invoice {
	t.Helper()
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)
	accepted, err := f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.NoError(t, err)
	return accepted
}

func TestCreateBacksOutIVAFromTotal(t *testing.T) {
	f := newFixture(nil, Config{})

	invoice, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)

	// 2*500 + 1*130 = 1130 inclusive: base 1000, IVA 130.
	require.True(t, invoice.Total.Equal(dec("1130.00")), "total=%s", invoice.Total)
	require.True(t, invoice.Subtotal.Equal(dec("1000.00")), "subtotal=%s", invoice.Subtotal)
	require.True(t, invoice.TaxAmount.Equal(dec("130.00")), "iva=%s", invoice.TaxAmount)
	require.Equal(t, StatusDraft, invoice.Status)
	require.Equal(t, ValidationPending, invoice.Validation)
}

func TestCreateTaxComponentsAlwaysRecompose(t *testing.T) {
	for _, total := range []string{"0.01", "1.00", "11.30", "99.99", "1130.00", "12345.67"} {
		breakdown := BreakdownTotal(dec(total))
		require.True(t, breakdown.Subtotal.Add(breakdown.IVA).Equal(breakdown.Total),
			"total %s: %s + %s != %s", total, breakdown.Subtotal, breakdown.IVA, breakdown.Total)
	}
}

func TestCreateRejectsEmptyInvoice(t *testing.T) {
	f := newFixture(nil, Config{})
	_, err := f.svc.Create(context.Background(), CreateInput{Number: "INV-0002"})
	require.ErrorIs(t, err, ErrEmptyInvoice)
}

func TestSubmitStartsFreshAttempt(t *testing.T) {
	f := newFixture(nil, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)

	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.Equal(t, ValidationPending, submitted.Validation)
	require.NotEqual(t, uuid.Nil, submitted.AttemptID)
	require.Equal(t, []uuid.UUID{submitted.AttemptID}, f.dispatcher.attempts)

	// Submitting again while pending is forbidden.
	_, err = f.svc.Submit(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptedVerdictAppliesStockAndPostsSale(t *testing.T) {
	f := newFixture(nil, Config{})
	invoice := acceptedInvoice(t, f)

	require.Equal(t, StatusSubmitted, invoice.Status)
	require.Equal(t, ValidationAccepted, invoice.Validation)
	require.NotNil(t, invoice.SaleEntryID)

	// One batch with both lines, in invoice order.
	require.Len(t, f.inv.batches, 1)
	require.Len(t, f.inv.batches[0], 2)
	require.True(t, f.inv.batches[0][0].Quantity.Equal(dec("2")))

	// Dr Receivable 1130 / Cr Revenue 1000 / Cr IVA 130.
	require.Len(t, f.fl.posted, 1)
	entry := f.fl.posted[0]
	require.Equal(t, coa.AccountReceivable, entry.Lines[0].AccountCode)
	require.True(t, entry.Lines[0].Debit.Equal(dec("1130.00")))
	require.Equal(t, coa.AccountSalesRevenue, entry.Lines[1].AccountCode)
	require.True(t, entry.Lines[1].Credit.Equal(dec("1000.00")))
	require.Equal(t, coa.AccountIVAPayable, entry.Lines[2].AccountCode)
	require.True(t, entry.Lines[2].Credit.Equal(dec("130.00")))
}

func TestRejectedVerdictReturnsToDraftWithReason(t *testing.T) {
	f := newFixture(nil, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	rejected, err := f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationRejected, Reason: "invalid tax id"})
	require.NoError(t, err)

	require.Equal(t, StatusDraft, rejected.Status)
	require.Equal(t, ValidationRejected, rejected.Validation)
	require.Equal(t, "invalid tax id", rejected.RejectionReason)

	// A rejection must leave no stock or journal trace.
	require.Empty(t, f.inv.batches)
	require.Empty(t, f.fl.posted)

	// The corrected draft can be resubmitted under a new attempt.
	resubmitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotEqual(t, submitted.AttemptID, resubmitted.AttemptID)
}

func TestDuplicateValidationResultIsRejected(t *testing.T) {
	f := newFixture(nil, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.NoError(t, err)

	// A redelivered verdict for the same attempt must not re-apply the sale.
	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.inv.batches, 1)
	require.Len(t, f.fl.posted, 1)
}

func TestTransientBatchFailureIsRetryable(t *testing.T) {
	f := newFixture(nil, Config{})
	f.inv.batchErrs = []error{errors.New("connection reset")}

	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	// First delivery: acceptance commits, then the stock batch blows up.
	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Empty(t, f.fl.posted)

	// The redelivered verdict must not bounce off its own failed claim: it
	// resumes the accepted invoice and applies the sale exactly once.
	applied, err := f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.NoError(t, err)
	require.Equal(t, ValidationAccepted, applied.Validation)
	require.NotNil(t, applied.SaleEntryID)
	require.Len(t, f.inv.batches, 1)
	require.Len(t, f.fl.posted, 1)

	// Once applied, further deliveries hit the claim.
	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.inv.batches, 1)
}

func TestStaleAttemptIsDropped(t *testing.T) {
	f := newFixture(nil, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, uuid.New(),
		ValidationResult{Outcome: ValidationAccepted})
	require.ErrorIs(t, err, ErrAttemptMismatch)
	require.Empty(t, f.inv.batches)
}

func TestStockShortageRevertsToDraft(t *testing.T) {
	f := newFixture(nil, Config{})
	f.inv.shortage = true

	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = f.svc.ApplyValidationResult(context.Background(), submitted.ID, submitted.AttemptID,
		ValidationResult{Outcome: ValidationAccepted})
	require.ErrorIs(t, err, ErrStockShortage)

	// No revenue entry, and the invoice is back in draft with the reason.
	require.Empty(t, f.fl.posted)
	reverted, err := f.svc.GetInvoiceState(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, reverted.Status)
	require.Equal(t, ValidationRejected, reverted.Validation)
	require.Contains(t, reverted.RejectionReason, "stock shortage")
}

func TestMarkPaidPostsSettlement(t *testing.T) {
	f := newFixture(nil, Config{})
	invoice := acceptedInvoice(t, f)

	paid, err := f.svc.MarkPaid(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentEntryID)

	// Dr Cash / Cr Receivable for the tax-inclusive total.
	entry := f.fl.posted[len(f.fl.posted)-1]
	require.Equal(t, coa.AccountCash, entry.Lines[0].AccountCode)
	require.True(t, entry.Lines[0].Debit.Equal(dec("1130.00")))
	require.Equal(t, coa.AccountReceivable, entry.Lines[1].AccountCode)
	require.True(t, entry.Lines[1].Credit.Equal(dec("1130.00")))
}

func TestMarkPaidRequiresAcceptedValidation(t *testing.T) {
	f := newFixture(nil, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPaidAndVoidedAreTerminal(t *testing.T) {
	f := newFixture(nil, Config{})
	invoice := acceptedInvoice(t, f)

	_, err := f.svc.MarkPaid(context.Background(), invoice.ID)
	require.NoError(t, err)

	_, err = f.svc.Void(context.Background(), invoice.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.MarkPaid(context.Background(), invoice.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	other := newFixture(nil, Config{})
	voided, err := other.svc.Void(context.Background(), acceptedInvoice(t, other).ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoided, voided.Status)

	_, err = other.svc.Void(context.Background(), voided.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = other.svc.MarkPaid(context.Background(), voided.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVoidReversesSaleEntry(t *testing.T) {
	f := newFixture(nil, Config{})
	invoice := acceptedInvoice(t, f)

	voided, err := f.svc.Void(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoided, voided.Status)
	require.Equal(t, []int64{*invoice.SaleEntryID}, f.fl.voided)
	// Restock stays off unless configured.
	require.Empty(t, f.inv.restocks)
}

func TestVoidRestocksWhenConfigured(t *testing.T) {
	f := newFixture(nil, Config{RestockOnVoid: true})
	invoice := acceptedInvoice(t, f)

	_, err := f.svc.Void(context.Background(), invoice.ID)
	require.NoError(t, err)

	require.Len(t, f.inv.restocks, 2)
	require.Equal(t, inventory.ReasonReturnIn, f.inv.restocks[0].Reason)
	require.True(t, f.inv.restocks[0].Quantity.Equal(dec("2")))
	require.Equal(t, invoice.Number, f.inv.restocks[0].DocumentRef)
}

func TestVoidDraftSkipsLedger(t *testing.T) {
	f := newFixture(nil, Config{RestockOnVoid: true})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)

	voided, err := f.svc.Void(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoided, voided.Status)
	// Nothing was ever posted or issued, so nothing to reverse or restock.
	require.Empty(t, f.fl.voided)
	require.Empty(t, f.inv.restocks)
}

func TestResolveValidationUsesAuthorityVerdict(t *testing.T) {
	f := newFixture(verdict{result: ValidationResult{Outcome: ValidationRejected, Reason: "bad fiscal period"}}, Config{})
	created, err := f.svc.Create(context.Background(), draftInput())
	require.NoError(t, err)
	submitted, err := f.svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveValidation(context.Background(), submitted.ID, submitted.AttemptID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, resolved.Status)
	require.Equal(t, "bad fiscal period", resolved.RejectionReason)
}

func TestSimulatedAuthorityIsDeterministicPerSeed(t *testing.T) {
	run := func() []ValidationState {
		authority := NewSimulatedAuthority(42)
		authority.Latency = 0
		var outcomes []ValidationState
		for i := 0; i < 10; i++ {
			result, err := authority.Validate(context.Background(), Invoice{})
			require.NoError(t, err)
			outcomes = append(outcomes, result.Outcome)
		}
		return outcomes
	}
	require.Equal(t, run(), run())
}

func TestSimulatedAuthorityHonorsContext(t *testing.T) {
	authority := NewSimulatedAuthority(1)
	authority.Latency = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := authority.Validate(ctx, Invoice{})
	require.ErrorIs(t, err, ErrValidationTimeout)
}
