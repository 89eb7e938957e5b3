package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/money"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	StatusDraft  EntryStatus = "DRAFT"
	StatusPosted EntryStatus = "POSTED"
	StatusVoided EntryStatus = "VOIDED"
)

// EntryOrigin identifies the business event class that produced an entry.
type EntryOrigin string

const (
	OriginManual         EntryOrigin = "MANUAL"
	OriginSale           EntryOrigin = "SALE"
	OriginPurchase       EntryOrigin = "PURCHASE"
	OriginInventoryAdj   EntryOrigin = "INVENTORY_ADJUSTMENT"
	OriginReconciliation EntryOrigin = "RECONCILIATION"
	OriginReversal       EntryOrigin = "REVERSAL"
)

// JournalEntry captures a posted set of balanced lines.
// Entries are immutable once posted; corrections happen via reversal entries.
type JournalEntry struct {
	ID          int64
	Number      int64
	Date        time.Time
	Memo        string
	ReferenceID string
	Status      EntryStatus
	Origin      EntryOrigin
	SourceID    uuid.UUID
	ReversalOf  *int64
	PostedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []Line
}

// Line stores a debit or credit amount against an account. Exactly one of
// Debit/Credit is non-zero.
type Line struct {
	ID          int64
	EntryID     int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput groups fields required to post a journal entry.
type PostingInput struct {
	Date        time.Time
	Memo        string
	ReferenceID string
	Origin      EntryOrigin
	SourceID    uuid.UUID
	ReversalOf  *int64
	Lines       []LineInput
}

// EntryFilter narrows Query results. Zero values mean "any".
type EntryFilter struct {
	From        time.Time
	To          time.Time
	AccountCode string
	ReferenceID string
}

var (
	// ErrUnbalanced indicates debit and credit totals differ beyond tolerance.
	ErrUnbalanced = errors.New("ledger: entry lines must balance")
	// ErrMalformedLine indicates a line with both or neither side set, or a negative amount.
	ErrMalformedLine = errors.New("ledger: malformed line")
	// ErrUnknownAccount indicates a line references a code absent from the chart.
	ErrUnknownAccount = errors.New("ledger: unknown account code")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two lines")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrInvalidStatus indicates the entry status forbids the action.
	ErrInvalidStatus = errors.New("ledger: invalid status for operation")
)

// Validate checks structural posting rules: line shape and balance.
// Account existence is checked by the service against the chart.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	if in.Origin == "" {
		return errors.New("ledger: origin required")
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account code", ErrMalformedLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", ErrMalformedLine, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d cannot carry both debit and credit", ErrMalformedLine, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d carries no amount", ErrMalformedLine, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !money.Equal(debit, credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// reverseLines swaps the debit/credit side of every line.
func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}
