package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates derived report caches after a successful write.
type CachePort interface {
	Bump(ctx context.Context) error
}

// Service owns the ledger. Post and Void are the only write paths; both are
// serialized per ledger instance so validation-then-append never interleaves.
type Service struct {
	repo  Repository
	chart *coa.Chart
	audit AuditPort
	cache CachePort
	now   func() time.Time

	mu sync.Mutex
}

// NewService builds the journal service.
func NewService(repo Repository, chart *coa.Chart, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, chart: chart, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a balanced entry, assigning the next sequence
// number. All-or-nothing per entry: on any validation failure nothing is
// persisted.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	for _, line := range input.Lines {
		if !s.chart.Has(line.AccountCode) {
			return JournalEntry{}, fmt.Errorf("%w: %s", ErrUnknownAccount, line.AccountCode)
		}
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		inserted.Lines = toLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterWrite(ctx, "journal.post", entry, map[string]any{
		"number": entry.Number,
		"origin": string(entry.Origin),
	})
	return entry, nil
}

// Void marks a posted entry voided and posts its reversal under a fresh
// sequence number. The original entry and its number are retained so the
// audit trail stays gapless in content even though numbering gaps appear.
func (s *Service) Void(ctx context.Context, entryID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetEntryWithLines(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("%w: entry %d is %s", ErrInvalidStatus, entryID, original.Status)
		}
		if err := tx.UpdateEntryStatus(ctx, original.ID, StatusVoided); err != nil {
			return err
		}
		posting := PostingInput{
			Date:        original.Date,
			Memo:        fmt.Sprintf("Reversal of entry %d", original.Number),
			ReferenceID: original.ReferenceID,
			Origin:      OriginReversal,
			SourceID:    uuid.New(),
			ReversalOf:  &original.ID,
			Lines:       reverseLines(lines),
		}
		inserted, err := tx.InsertEntry(ctx, posting)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		inserted.Lines = toLines(inserted.ID, posting.Lines, s.now())
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterWrite(ctx, "journal.void", reversal, map[string]any{
		"voided_entry_id": entryID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// Query returns posted and voided entries matching the filter. Read-only.
func (s *Service) Query(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	return s.repo.Query(ctx, filter)
}

// Get returns one entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.Get(ctx, entryID)
}

// ListBooked returns every posted and voided entry. Reports fold over this
// set; a voided original and its reversal cancel each other there.
func (s *Service) ListBooked(ctx context.Context) ([]JournalEntry, error) {
	return s.repo.ListBooked(ctx)
}

func (s *Service) afterWrite(ctx context.Context, action string, entry JournalEntry, meta map[string]any) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta:     meta,
			At:       s.now(),
		})
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func toLines(entryID int64, lines []LineInput, ts time.Time) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, Line{
			EntryID:     entryID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			CreatedAt:   ts,
		})
	}
	return out
}
