package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/balanza-erp/balanza-erp/internal/coa"
	"github.com/balanza-erp/balanza-erp/internal/ledger"
)

// memoryRepo backs the service with maps and snapshots state at transaction
// start so a failed transaction leaves items and movements untouched.
type memoryRepo struct {
	items      map[int64]Item
	movements  []Movement
	nextMoveID int64

	failOnInsert int // InsertMovement call number that fails, 0 disables
	inserts      int
}

func newMemoryRepo(items ...Item) *memoryRepo {
	r := &memoryRepo{items: map[int64]Item{}}
	for _, item := range items {
		r.items[item.ID] = item
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	itemsSnap := make(map[int64]Item, len(r.items))
	for id, item := range r.items {
		itemsSnap[id] = item
	}
	movesSnap := make([]Movement, len(r.movements))
	copy(movesSnap, r.movements)
	nextSnap := r.nextMoveID

	if err := fn(ctx, r); err != nil {
		r.items = itemsSnap
		r.movements = movesSnap
		r.nextMoveID = nextSnap
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID int64) (Item, error) {
	item, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].ItemID == itemID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return r.GetItem(ctx, itemID)
}

func (r *memoryRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	r.inserts++
	if r.failOnInsert > 0 && r.inserts == r.failOnInsert {
		return 0, errors.New("insert movement: connection reset")
	}
	r.nextMoveID++
	movement.ID = r.nextMoveID
	r.movements = append(r.movements, movement)
	return movement.ID, nil
}

func (r *memoryRepo) UpdateItemStock(ctx context.Context, itemID int64, quantity, averageCost decimal.Decimal) error {
	item, ok := r.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.QuantityOnHand = quantity
	item.AverageCost = averageCost
	r.items[itemID] = item
	return nil
}

// fakeLedger records postings and voids without any balancing checks.
type fakeLedger struct {
	nextID int64
	posted []ledger.JournalEntry
	voided []int64
}

func (f *fakeLedger) Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error) {
	f.nextID++
	entry := ledger.JournalEntry{
		ID:       f.nextID,
		Number:   f.nextID,
		Date:     input.Date,
		Memo:     input.Memo,
		Status:   ledger.StatusPosted,
		Origin:   input.Origin,
		SourceID: input.SourceID,
	}
	for _, l := range input.Lines {
		entry.Lines = append(entry.Lines, ledger.Line{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	f.posted = append(f.posted, entry)
	return entry, nil
}

func (f *fakeLedger) Void(ctx context.Context, entryID int64) (ledger.JournalEntry, error) {
	f.voided = append(f.voided, entryID)
	return ledger.JournalEntry{ID: f.nextID + 1, ReversalOf: &entryID, Origin: ledger.OriginReversal}, nil
}

func (f *fakeLedger) byID(id int64) ledger.JournalEntry {
	for _, e := range f.posted {
		if e.ID == id {
			return e
		}
	}
	return ledger.JournalEntry{}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func widget(qty, cost string) Item {
	return Item{
		ID:             1,
		Code:           "WID-001",
		Name:           "Widget",
		QuantityOnHand: dec(qty),
		AverageCost:    dec(cost),
	}
}

func newTestService(repo *memoryRepo, fl *fakeLedger) *Service {
	return NewService(repo, fl, nil, DefaultRouting())
}

func TestInboundRecomputesWeightedAverage(t *testing.T) {
	repo := newMemoryRepo(widget("10", "100.00"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	movement, entry, err := svc.ApplyInbound(context.Background(), InboundInput{
		ItemID:   1,
		Quantity: dec("5"),
		UnitCost: dec("120.00"),
		Reason:   ReasonPurchase,
	})
	require.NoError(t, err)

	item := repo.items[1]
	require.True(t, item.QuantityOnHand.Equal(dec("15")))
	// (10*100 + 5*120) / 15 = 106.6667 at four decimals.
	require.True(t, item.AverageCost.Equal(dec("106.6667")), "got %s", item.AverageCost)

	require.Equal(t, KindInbound, movement.Kind)
	require.True(t, movement.QuantityBefore.Equal(dec("10")))
	require.True(t, movement.QuantityAfter.Equal(dec("15")))
	require.Equal(t, entry.ID, movement.EntryID)

	// Dr Inventory / Cr Payable for 5 * 120.00.
	require.Len(t, entry.Lines, 2)
	require.Equal(t, coa.AccountInventory, entry.Lines[0].AccountCode)
	require.True(t, entry.Lines[0].Debit.Equal(dec("600.00")))
	require.Equal(t, coa.AccountPayable, entry.Lines[1].AccountCode)
	require.True(t, entry.Lines[1].Credit.Equal(dec("600.00")))
}

func TestOutboundValuesAtCurrentAverage(t *testing.T) {
	repo := newMemoryRepo(widget("12", "106.6667"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	movement, entry, err := svc.ApplyOutbound(context.Background(), OutboundInput{
		ItemID:   1,
		Quantity: dec("3"),
		Reason:   ReasonSale,
	})
	require.NoError(t, err)

	item := repo.items[1]
	require.True(t, item.QuantityOnHand.Equal(dec("9")))
	// Outbounds consume at the average, they never move it.
	require.True(t, item.AverageCost.Equal(dec("106.6667")))
	require.True(t, movement.UnitCost.Equal(dec("106.6667")))

	// Dr COGS / Cr Inventory for round(3 * 106.6667) = 320.00.
	require.Equal(t, coa.AccountCOGS, entry.Lines[0].AccountCode)
	require.True(t, entry.Lines[0].Debit.Equal(dec("320.00")), "got %s", entry.Lines[0].Debit)
	require.Equal(t, coa.AccountInventory, entry.Lines[1].AccountCode)
	require.True(t, entry.Lines[1].Credit.Equal(dec("320.00")))
}

func TestOutboundRejectsInsufficientStock(t *testing.T) {
	repo := newMemoryRepo(widget("12", "106.6667"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	_, _, err := svc.ApplyOutbound(context.Background(), OutboundInput{
		ItemID:   1,
		Quantity: dec("20"),
		Reason:   ReasonSale,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing moved, nothing persisted.
	item := repo.items[1]
	require.True(t, item.QuantityOnHand.Equal(dec("12")))
	require.True(t, item.AverageCost.Equal(dec("106.6667")))
	require.Empty(t, repo.movements)
}

func TestLossRoutesToLossesNotCOGS(t *testing.T) {
	repo := newMemoryRepo(widget("10", "50.00"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	_, entry, err := svc.ApplyOutbound(context.Background(), OutboundInput{
		ItemID:   1,
		Quantity: dec("2"),
		Reason:   ReasonLoss,
	})
	require.NoError(t, err)

	require.Equal(t, coa.AccountInventoryLosses, entry.Lines[0].AccountCode)
	for _, line := range entry.Lines {
		require.NotEqual(t, coa.AccountCOGS, line.AccountCode)
	}
}

func TestInboundRejectsBadInput(t *testing.T) {
	svc := newTestService(newMemoryRepo(widget("10", "50.00")), &fakeLedger{})

	_, _, err := svc.ApplyInbound(context.Background(), InboundInput{
		ItemID: 1, Quantity: dec("0"), UnitCost: dec("10.00"), Reason: ReasonPurchase,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = svc.ApplyInbound(context.Background(), InboundInput{
		ItemID: 1, Quantity: dec("1"), UnitCost: dec("-1.00"), Reason: ReasonPurchase,
	})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, _, err = svc.ApplyInbound(context.Background(), InboundInput{
		ItemID: 1, Quantity: dec("1"), UnitCost: dec("10.00"), Reason: ReasonSale,
	})
	require.ErrorIs(t, err, ErrInvalidReason)
}

func TestFailedTransactionVoidsPostedEntry(t *testing.T) {
	repo := newMemoryRepo(widget("10", "100.00"))
	// The entry is posted before the movement insert, so a failure here must
	// trigger the compensating void.
	repo.failOnInsert = 1
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	_, _, err := svc.ApplyInbound(context.Background(), InboundInput{
		ItemID:   1,
		Quantity: dec("5"),
		UnitCost: dec("120.00"),
		Reason:   ReasonPurchase,
	})
	require.Error(t, err)
	require.Len(t, fl.posted, 1)
	require.Equal(t, []int64{fl.posted[0].ID}, fl.voided)

	item := repo.items[1]
	require.True(t, item.QuantityOnHand.Equal(dec("10")))
	require.True(t, item.AverageCost.Equal(dec("100.00")))
	require.Empty(t, repo.movements)
}

func TestSaleBatchAppliesAllLines(t *testing.T) {
	repo := newMemoryRepo(
		Item{ID: 1, Code: "WID-001", QuantityOnHand: dec("10"), AverageCost: dec("100.00")},
		Item{ID: 2, Code: "GAD-002", QuantityOnHand: dec("8"), AverageCost: dec("40.00")},
	)
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	movements, entries, err := svc.ApplySaleBatch(context.Background(), []SaleLine{
		{ItemID: 1, Quantity: dec("4")},
		{ItemID: 2, Quantity: dec("2")},
	}, "INV-0001")
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Len(t, entries, 2)

	require.True(t, repo.items[1].QuantityOnHand.Equal(dec("6")))
	require.True(t, repo.items[2].QuantityOnHand.Equal(dec("6")))
	require.Empty(t, fl.voided)

	// Each line posts its own COGS entry at that item's average cost.
	require.True(t, fl.byID(entries[0].ID).Lines[0].Debit.Equal(dec("400.00")))
	require.True(t, fl.byID(entries[1].ID).Lines[0].Debit.Equal(dec("80.00")))
}

func TestSaleBatchAbortsOnAnyShortage(t *testing.T) {
	repo := newMemoryRepo(
		Item{ID: 1, Code: "WID-001", QuantityOnHand: dec("10"), AverageCost: dec("100.00")},
		Item{ID: 2, Code: "GAD-002", QuantityOnHand: dec("1"), AverageCost: dec("40.00")},
	)
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	_, _, err := svc.ApplySaleBatch(context.Background(), []SaleLine{
		{ItemID: 1, Quantity: dec("4")},
		{ItemID: 2, Quantity: dec("5")},
	}, "INV-0002")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The shortage is detected before any line is applied.
	require.True(t, repo.items[1].QuantityOnHand.Equal(dec("10")))
	require.True(t, repo.items[2].QuantityOnHand.Equal(dec("1")))
	require.Empty(t, repo.movements)
	require.Empty(t, fl.posted)
}

func TestSaleBatchVoidsEntriesWhenApplyFails(t *testing.T) {
	repo := newMemoryRepo(
		Item{ID: 1, Code: "WID-001", QuantityOnHand: dec("10"), AverageCost: dec("100.00")},
		Item{ID: 2, Code: "GAD-002", QuantityOnHand: dec("8"), AverageCost: dec("40.00")},
	)
	// First line's insert succeeds, second line's fails mid-batch.
	repo.failOnInsert = 2
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	_, _, err := svc.ApplySaleBatch(context.Background(), []SaleLine{
		{ItemID: 1, Quantity: dec("4")},
		{ItemID: 2, Quantity: dec("2")},
	}, "INV-0003")
	require.Error(t, err)

	// Stock rolled back, and every entry posted before the failure was voided.
	require.True(t, repo.items[1].QuantityOnHand.Equal(dec("10")))
	require.True(t, repo.items[2].QuantityOnHand.Equal(dec("8")))
	require.Empty(t, repo.movements)
	require.NotEmpty(t, fl.voided)
	require.Contains(t, fl.voided, fl.posted[0].ID)
}

func TestAdjustmentDispatchesBySign(t *testing.T) {
	repo := newMemoryRepo(widget("10", "50.00"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	up, entry, err := svc.ApplyAdjustment(context.Background(), AdjustmentInput{
		ItemID: 1,
		Delta:  dec("3"),
	})
	require.NoError(t, err)
	require.Equal(t, KindAdjustment, up.Kind)
	// Positive corrections come in at the current average cost.
	require.True(t, up.UnitCost.Equal(dec("50.00")))
	require.True(t, repo.items[1].QuantityOnHand.Equal(dec("13")))
	require.True(t, repo.items[1].AverageCost.Equal(dec("50.00")))
	require.Equal(t, coa.AccountInventory, entry.Lines[0].AccountCode)
	require.Equal(t, coa.AccountInventoryLosses, entry.Lines[1].AccountCode)

	down, entry, err := svc.ApplyAdjustment(context.Background(), AdjustmentInput{
		ItemID: 1,
		Delta:  dec("-2"),
	})
	require.NoError(t, err)
	require.Equal(t, KindAdjustment, down.Kind)
	require.True(t, repo.items[1].QuantityOnHand.Equal(dec("11")))
	require.Equal(t, coa.AccountInventoryLosses, entry.Lines[0].AccountCode)

	_, _, err = svc.ApplyAdjustment(context.Background(), AdjustmentInput{ItemID: 1, Delta: dec("0")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestListMovementsNewestFirst(t *testing.T) {
	repo := newMemoryRepo(widget("10", "50.00"))
	svc := newTestService(repo, &fakeLedger{})

	for _, qty := range []string{"1", "2", "3"} {
		_, _, err := svc.ApplyInbound(context.Background(), InboundInput{
			ItemID: 1, Quantity: dec(qty), UnitCost: dec("50.00"), Reason: ReasonPurchase,
		})
		require.NoError(t, err)
	}

	movements, err := svc.ListMovements(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.True(t, movements[0].Quantity.Equal(dec("3")))
	require.True(t, movements[1].Quantity.Equal(dec("2")))
}

func TestMovementCarriesSourceID(t *testing.T) {
	repo := newMemoryRepo(widget("10", "50.00"))
	fl := &fakeLedger{}
	svc := newTestService(repo, fl)

	movement, entry, err := svc.ApplyInbound(context.Background(), InboundInput{
		ItemID: 1, Quantity: dec("1"), UnitCost: dec("50.00"), Reason: ReasonPurchase,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, movement.SourceID)
	require.Equal(t, entry.SourceID, movement.SourceID)
}
