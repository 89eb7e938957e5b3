package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported inventory movements.
type MovementKind string

const (
	KindInbound    MovementKind = "INBOUND"
	KindOutbound   MovementKind = "OUTBOUND"
	KindAdjustment MovementKind = "ADJUSTMENT"
)

// ReasonCode explains why a movement happened and drives account routing.
type ReasonCode string

const (
	ReasonPurchase         ReasonCode = "PURCHASE"
	ReasonSale             ReasonCode = "SALE"
	ReasonLoss             ReasonCode = "LOSS"
	ReasonReturnIn         ReasonCode = "RETURN_IN"
	ReasonReturnOut        ReasonCode = "RETURN_OUT"
	ReasonManualAdjustment ReasonCode = "MANUAL_ADJUSTMENT"
)

// Item is the valuation state for one stock-keeping unit. Owned exclusively by
// this module; QuantityOnHand and AverageCost change only through processed
// movements.
type Item struct {
	ID             int64
	Code           string
	Name           string
	QuantityOnHand decimal.Decimal
	AverageCost    decimal.Decimal
	MinThreshold   decimal.Decimal
	MaxThreshold   decimal.Decimal
	SalePrice      decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookValue is the ledger-matching value of the on-hand stock.
func (i Item) BookValue() decimal.Decimal {
	return i.QuantityOnHand.Mul(i.AverageCost).Round(2)
}

// BelowMin reports whether on-hand stock fell under the minimum threshold.
func (i Item) BelowMin() bool {
	return i.MinThreshold.IsPositive() && i.QuantityOnHand.LessThan(i.MinThreshold)
}

// Movement is one append-only stock movement record, created once and never
// mutated. EntryID links the resulting journal entry 1:1.
type Movement struct {
	ID             int64
	Date           time.Time
	Kind           MovementKind
	ItemID         int64
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	Reason         ReasonCode
	DocumentRef    string
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
	EntryID        int64
	SourceID       uuid.UUID
	CreatedAt      time.Time
}

// InboundInput describes a stock receipt.
type InboundInput struct {
	ItemID      int64
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Reason      ReasonCode
	DocumentRef string
}

// OutboundInput describes a stock issue. Unit cost is derived from the item's
// current weighted average, never supplied by the caller.
type OutboundInput struct {
	ItemID      int64
	Quantity    decimal.Decimal
	Reason      ReasonCode
	DocumentRef string
}

// AdjustmentInput describes a signed stock correction.
type AdjustmentInput struct {
	ItemID      int64
	Delta       decimal.Decimal
	Reason      ReasonCode
	DocumentRef string
}

// SaleLine is one invoice line applied as part of an atomic sale batch.
type SaleLine struct {
	ItemID   int64
	Quantity decimal.Decimal
}

var (
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInsufficientStock indicates the outbound exceeds on-hand quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrItemNotFound indicates an unknown item.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInvalidReason indicates the reason code does not fit the movement kind.
	ErrInvalidReason = errors.New("inventory: invalid reason code")
)
