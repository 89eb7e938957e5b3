package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/money"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// LedgerPort is the journal contract the valuation engine posts through.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
	Void(ctx context.Context, entryID int64) (ledger.JournalEntry, error)
}

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns per-item stock and weighted-average cost state. Movements are
// append-only; every movement with financial effect posts exactly one journal
// entry through the ledger port.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	audit   AuditPort
	routing AccountRouting
	locks   *shared.KeyedMutex
	now     func() time.Time
}

// NewService builds the valuation engine.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort, routing AccountRouting) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledgerPort,
		audit:   audit,
		routing: routing,
		locks:   shared.NewKeyedMutex(),
		now:     time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ApplyInbound receives stock and recomputes the weighted-average cost.
// Posts Dr Inventory / Cr counter-account for quantity*unitCost.
func (s *Service) ApplyInbound(ctx context.Context, input InboundInput) (Movement, ledger.JournalEntry, error) {
	if !input.Quantity.IsPositive() {
		return Movement{}, ledger.JournalEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Movement{}, ledger.JournalEntry{}, ErrInvalidUnitCost
	}
	counter, err := s.routing.inboundCounter(input.Reason)
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}

	key := shared.ItemLockKey(input.ItemID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var movement Movement
	var entry ledger.JournalEntry
	err = s.withCompensation(ctx, &entry, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		newQty := item.QuantityOnHand.Add(input.Quantity)
		newCost := money.WeightedAverage(item.QuantityOnHand, item.AverageCost, input.Quantity, input.UnitCost)
		value := money.Round(input.Quantity.Mul(input.UnitCost))

		posted, err := s.ledger.Post(ctx, ledger.PostingInput{
			Date:        s.now(),
			Memo:        fmt.Sprintf("Inbound %s %s x %s", input.Reason, input.Quantity, item.Code),
			ReferenceID: input.DocumentRef,
			Origin:      originFor(input.Reason),
			SourceID:    uuid.New(),
			Lines: []ledger.LineInput{
				{AccountCode: s.routing.Inventory, Debit: value},
				{AccountCode: counter, Credit: value},
			},
		})
		if err != nil {
			return err
		}
		entry = posted

		movement = Movement{
			Date:           s.now(),
			Kind:           KindInbound,
			ItemID:         item.ID,
			Quantity:       input.Quantity,
			UnitCost:       input.UnitCost,
			Reason:         input.Reason,
			DocumentRef:    input.DocumentRef,
			QuantityBefore: item.QuantityOnHand,
			QuantityAfter:  newQty,
			EntryID:        posted.ID,
			SourceID:       posted.SourceID,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return tx.UpdateItemStock(ctx, item.ID, newQty, newCost)
	})
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}
	s.recordAudit(ctx, "inventory.inbound", movement)
	return movement, entry, nil
}

// ApplyOutbound issues stock at the current weighted-average cost. The average
// cost never changes on an outbound. Fails with ErrInsufficientStock before
// any state is touched when the quantity exceeds on-hand stock.
func (s *Service) ApplyOutbound(ctx context.Context, input OutboundInput) (Movement, ledger.JournalEntry, error) {
	if !input.Quantity.IsPositive() {
		return Movement{}, ledger.JournalEntry{}, ErrInvalidQuantity
	}
	counter, err := s.routing.outboundCounter(input.Reason)
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}

	key := shared.ItemLockKey(input.ItemID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var movement Movement
	var entry ledger.JournalEntry
	err = s.withCompensation(ctx, &entry, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, entry, err = s.applyOutboundTx(ctx, tx, input, counter)
		return err
	})
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}
	s.recordAudit(ctx, "inventory.outbound", movement)
	return movement, entry, nil
}

// ApplySaleBatch issues stock for every line of a sale as a single atomic
// unit: all lines are checked against on-hand stock first, so a shortage on
// any line aborts the whole batch with no partial application.
func (s *Service) ApplySaleBatch(ctx context.Context, lines []SaleLine, documentRef string) ([]Movement, []ledger.JournalEntry, error) {
	if len(lines) == 0 {
		return nil, nil, ErrInvalidQuantity
	}
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, nil, ErrInvalidQuantity
		}
		keys = append(keys, shared.ItemLockKey(line.ItemID))
	}
	release := s.locks.LockAll(keys)
	defer release()

	var movements []Movement
	var entries []ledger.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if line.Quantity.GreaterThan(item.QuantityOnHand) {
				return fmt.Errorf("%w: item %s has %s on hand, requested %s",
					ErrInsufficientStock, item.Code, item.QuantityOnHand, line.Quantity)
			}
		}
		for _, line := range lines {
			movement, entry, err := s.applyOutboundTx(ctx, tx, OutboundInput{
				ItemID:      line.ItemID,
				Quantity:    line.Quantity,
				Reason:      ReasonSale,
				DocumentRef: documentRef,
			}, s.routing.COGS)
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		// Entries already posted for earlier lines are reversed so the batch
		// leaves no financial trace on abort.
		for _, entry := range entries {
			_, _ = s.ledger.Void(ctx, entry.ID)
		}
		return nil, nil, err
	}
	for _, movement := range movements {
		s.recordAudit(ctx, "inventory.outbound", movement)
	}
	return movements, entries, nil
}

// ApplyAdjustment wraps inbound/outbound depending on the delta sign.
// Manual adjustments never post to cost of goods sold.
func (s *Service) ApplyAdjustment(ctx context.Context, input AdjustmentInput) (Movement, ledger.JournalEntry, error) {
	if input.Delta.IsZero() {
		return Movement{}, ledger.JournalEntry{}, ErrInvalidQuantity
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonManualAdjustment
	}
	if input.Delta.IsPositive() {
		item, err := s.repo.GetItem(ctx, input.ItemID)
		if err != nil {
			return Movement{}, ledger.JournalEntry{}, err
		}
		movement, entry, err := s.ApplyInbound(ctx, InboundInput{
			ItemID:      input.ItemID,
			Quantity:    input.Delta,
			UnitCost:    item.AverageCost,
			Reason:      reason,
			DocumentRef: input.DocumentRef,
		})
		if err != nil {
			return Movement{}, ledger.JournalEntry{}, err
		}
		movement.Kind = KindAdjustment
		return movement, entry, nil
	}
	movement, entry, err := s.ApplyOutbound(ctx, OutboundInput{
		ItemID:      input.ItemID,
		Quantity:    input.Delta.Neg(),
		Reason:      reason,
		DocumentRef: input.DocumentRef,
	})
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}
	movement.Kind = KindAdjustment
	return movement, entry, nil
}

// GetItemState returns the current valuation state for an item.
func (s *Service) GetItemState(ctx context.Context, itemID int64) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// ListMovements returns the append-only movement log for an item, newest first.
func (s *Service) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListMovements(ctx, itemID, limit)
}

func (s *Service) applyOutboundTx(ctx context.Context, tx TxRepository, input OutboundInput, counter string) (Movement, ledger.JournalEntry, error) {
	item, err := tx.GetItemForUpdate(ctx, input.ItemID)
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}
	if input.Quantity.GreaterThan(item.QuantityOnHand) {
		return Movement{}, ledger.JournalEntry{}, fmt.Errorf("%w: item %s has %s on hand, requested %s",
			ErrInsufficientStock, item.Code, item.QuantityOnHand, input.Quantity)
	}
	newQty := item.QuantityOnHand.Sub(input.Quantity)
	value := money.Round(input.Quantity.Mul(item.AverageCost))

	posted, err := s.ledger.Post(ctx, ledger.PostingInput{
		Date:        s.now(),
		Memo:        fmt.Sprintf("Outbound %s %s x %s", input.Reason, input.Quantity, item.Code),
		ReferenceID: input.DocumentRef,
		Origin:      originFor(input.Reason),
		SourceID:    uuid.New(),
		Lines: []ledger.LineInput{
			{AccountCode: counter, Debit: value},
			{AccountCode: s.routing.Inventory, Credit: value},
		},
	})
	if err != nil {
		return Movement{}, ledger.JournalEntry{}, err
	}

	movement := Movement{
		Date:           s.now(),
		Kind:           KindOutbound,
		ItemID:         item.ID,
		Quantity:       input.Quantity,
		UnitCost:       item.AverageCost,
		Reason:         input.Reason,
		DocumentRef:    input.DocumentRef,
		QuantityBefore: item.QuantityOnHand,
		QuantityAfter:  newQty,
		EntryID:        posted.ID,
		SourceID:       posted.SourceID,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, posted, err
	}
	movement.ID = id
	// Average cost is intentionally untouched: outbounds consume at the
	// current average, only inbounds recompute it.
	if err := tx.UpdateItemStock(ctx, item.ID, newQty, item.AverageCost); err != nil {
		return Movement{}, posted, err
	}
	return movement, posted, nil
}

// withCompensation runs fn in a repository transaction and voids the posted
// entry when the transaction fails after posting, so the ledger and the stock
// log cannot diverge silently.
func (s *Service) withCompensation(ctx context.Context, entry *ledger.JournalEntry, fn func(context.Context, TxRepository) error) error {
	err := s.repo.WithTx(ctx, fn)
	if err != nil && entry != nil && entry.ID != 0 {
		if _, verr := s.ledger.Void(ctx, entry.ID); verr != nil && !errors.Is(verr, ledger.ErrEntryNotFound) {
			return fmt.Errorf("%v (compensating void failed: %w)", err, verr)
		}
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, action string, movement Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "inventory_movement",
		EntityID: fmt.Sprintf("%d", movement.ID),
		Meta: map[string]any{
			"item_id":  movement.ItemID,
			"reason":   string(movement.Reason),
			"quantity": movement.Quantity.String(),
			"entry_id": movement.EntryID,
		},
		At: s.now(),
	})
}
