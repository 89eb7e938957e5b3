package recon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BankMovement is one statement line as supplied by the bank. Amount is
// signed from the account holder's point of view: positive for deposits,
// negative for withdrawals.
type BankMovement struct {
	ID          string
	Date        time.Time
	Reference   string
	Description string
	Amount      decimal.Decimal
}

// LedgerMovement is the bank-account effect of one posted journal entry,
// reduced to a signed amount so it can be compared against statement lines.
type LedgerMovement struct {
	EntryID     int64
	EntryNumber int64
	Date        time.Time
	ReferenceID string
	Memo        string
	Amount      decimal.Decimal
}

// Match pairs a statement line with the journal entry that explains it.
type Match struct {
	Bank   BankMovement
	Ledger LedgerMovement
}

// Statement is a bank statement covering a date range.
type Statement struct {
	From      time.Time
	To        time.Time
	Movements []BankMovement
}

// Result is the outcome of diffing a statement against the ledger.
// UnmatchedBank lines are candidates for adjustment postings; UnmatchedLedger
// entries are outstanding items (issued but not yet cleared by the bank).
type Result struct {
	Matches         []Match
	UnmatchedBank   []BankMovement
	UnmatchedLedger []LedgerMovement
}

// Adjustment records one journal entry posted to absorb an unmatched
// statement line.
type Adjustment struct {
	Bank    BankMovement
	EntryID int64
}

var (
	// ErrEmptyStatement indicates a statement without movements.
	ErrEmptyStatement = errors.New("recon: statement has no movements")
	// ErrInvalidRange indicates a statement whose To precedes From.
	ErrInvalidRange = errors.New("recon: invalid statement date range")
)
