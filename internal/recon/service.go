package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// LedgerPort is the journal contract the matcher consumes. Reconciliation
// never touches ledger storage directly; adjustments go through Post like
// any other caller.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
	Query(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error)
}

// AuditPort records reconciliation actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AdjustmentRouting names the accounts adjustment entries are posted against.
type AdjustmentRouting struct {
	Bank     string
	Fees     string
	Interest string
}

// DefaultAdjustmentRouting routes unexplained debits to bank fees and
// unexplained credits to interest income.
func DefaultAdjustmentRouting() AdjustmentRouting {
	return AdjustmentRouting{
		Bank:     coa.AccountBank,
		Fees:     coa.AccountBankFees,
		Interest: coa.AccountInterestIncome,
	}
}

// Service diffs bank statements against the ledger and posts adjustment
// entries for statement lines the ledger cannot explain.
type Service struct {
	ledger  LedgerPort
	routing AdjustmentRouting
	audit   AuditPort
	logger  *slog.Logger
	window  time.Duration
}

func NewService(ledgerPort LedgerPort, routing AdjustmentRouting, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:  ledgerPort,
		routing: routing,
		audit:   audit,
		logger:  logger,
		window:  DefaultDateWindow,
	}
}

// WithDateWindow overrides the matching window.
func (s *Service) WithDateWindow(window time.Duration) {
	s.window = window
}

// Reconcile diffs the statement against posted entries touching the bank
// account within the statement range, padded by the date window on both
// sides. Read-only.
func (s *Service) Reconcile(ctx context.Context, stmt Statement) (Result, error) {
	if len(stmt.Movements) == 0 {
		return Result{}, ErrEmptyStatement
	}
	if stmt.To.Before(stmt.From) {
		return Result{}, ErrInvalidRange
	}

	entries, err := s.ledger.Query(ctx, ledger.EntryFilter{
		From:        stmt.From.Add(-s.window),
		To:          stmt.To.Add(s.window),
		AccountCode: s.routing.Bank,
	})
	if err != nil {
		return Result{}, fmt.Errorf("recon: query ledger: %w", err)
	}

	movements := s.ledgerMovements(entries)
	result := diff(stmt.Movements, movements, s.window)
	s.logger.InfoContext(ctx, "statement reconciled",
		"matched", len(result.Matches),
		"unmatched_bank", len(result.UnmatchedBank),
		"unmatched_ledger", len(result.UnmatchedLedger))
	return result, nil
}

// PostAdjustments absorbs unmatched statement lines into the ledger: an
// unexplained withdrawal is booked as a bank fee, an unexplained deposit as
// interest income. Outstanding ledger entries are left alone; they will
// clear on a later statement.
func (s *Service) PostAdjustments(ctx context.Context, unmatched []BankMovement) ([]Adjustment, error) {
	var adjustments []Adjustment
	for _, b := range unmatched {
		if b.Amount.IsZero() {
			continue
		}
		input := s.adjustmentInput(b)
		entry, err := s.ledger.Post(ctx, input)
		if err != nil {
			return adjustments, fmt.Errorf("recon: adjust statement line %s: %w", b.ID, err)
		}
		adjustments = append(adjustments, Adjustment{Bank: b, EntryID: entry.ID})
		s.recordAudit(ctx, "recon.adjust", b, entry.ID)
	}
	return adjustments, nil
}

func (s *Service) adjustmentInput(b BankMovement) ledger.PostingInput {
	amount := b.Amount.Abs()
	memo := b.Description
	if memo == "" {
		memo = "bank reconciliation adjustment"
	}
	var lines []ledger.LineInput
	if b.Amount.IsNegative() {
		lines = []ledger.LineInput{
			{AccountCode: s.routing.Fees, Debit: amount},
			{AccountCode: s.routing.Bank, Credit: amount},
		}
	} else {
		lines = []ledger.LineInput{
			{AccountCode: s.routing.Bank, Debit: amount},
			{AccountCode: s.routing.Interest, Credit: amount},
		}
	}
	return ledger.PostingInput{
		Date:        b.Date,
		Memo:        memo,
		ReferenceID: b.Reference,
		Origin:      ledger.OriginReconciliation,
		SourceID:    uuid.New(),
		Lines:       lines,
	}
}

// ledgerMovements reduces each booked entry to its signed net effect on the
// bank account. Voided entries are kept: their reversals are booked too, and
// only together do the two bank movements cancel against the statement.
func (s *Service) ledgerMovements(entries []ledger.JournalEntry) []LedgerMovement {
	var out []LedgerMovement
	for _, e := range entries {
		if e.Status != ledger.StatusPosted && e.Status != ledger.StatusVoided {
			continue
		}
		net := decimal.Zero
		for _, l := range e.Lines {
			if l.AccountCode != s.routing.Bank {
				continue
			}
			net = net.Add(l.Debit).Sub(l.Credit)
		}
		if net.IsZero() {
			continue
		}
		out = append(out, LedgerMovement{
			EntryID:     e.ID,
			EntryNumber: e.Number,
			Date:        e.Date,
			ReferenceID: e.ReferenceID,
			Memo:        e.Memo,
			Amount:      net,
		})
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, action string, b BankMovement, entryID int64) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Action:   action,
		Entity:   "bank_movement",
		EntityID: b.ID,
		Meta: map[string]any{
			"amount":   b.Amount.String(),
			"entry_id": entryID,
		},
		At: time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "action", action, "error", err)
	}
}
