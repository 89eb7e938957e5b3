package invoicing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSubmitted InvoiceStatus = "SUBMITTED"
	StatusPaid      InvoiceStatus = "PAID"
	StatusVoided    InvoiceStatus = "VOIDED"
)

// ValidationState tracks the external tax-authority verdict.
type ValidationState string

const (
	ValidationPending  ValidationState = "PENDING"
	ValidationAccepted ValidationState = "ACCEPTED"
	ValidationRejected ValidationState = "REJECTED"
)

// Invoice models a sales document. Status advances only through the state
// machine; Paid and Voided are terminal.
type Invoice struct {
	ID              int64
	Number          string
	Client          string
	Date            time.Time
	DueDate         time.Time
	Lines           []InvoiceLine
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	Total           decimal.Decimal
	Status          InvoiceStatus
	Validation      ValidationState
	RejectionReason string
	AttemptID       uuid.UUID
	SaleEntryID     *int64
	PaymentEntryID  *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceLine references an inventory item at a tax-inclusive unit price.
type InvoiceLine struct {
	ID        int64
	InvoiceID int64
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// Amount returns the tax-inclusive line amount after discount.
func (l InvoiceLine) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Sub(l.Discount).Round(2)
}

// LineInput describes one requested invoice line.
type LineInput struct {
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// CreateInput groups fields to create a draft invoice.
type CreateInput struct {
	Number  string
	Client  string
	Date    time.Time
	DueDate time.Time
	Lines   []LineInput
}

var (
	// ErrInvalidTransition indicates the current status forbids the operation.
	ErrInvalidTransition = errors.New("invoicing: invalid status transition")
	// ErrStockShortage indicates a line could not be covered by on-hand stock.
	ErrStockShortage = errors.New("invoicing: stock shortage")
	// ErrValidationTimeout indicates the external validation did not answer in time.
	ErrValidationTimeout = errors.New("invoicing: external validation timed out")
	// ErrInvoiceNotFound indicates an unknown invoice.
	ErrInvoiceNotFound = errors.New("invoicing: invoice not found")
	// ErrEmptyInvoice indicates a draft without lines.
	ErrEmptyInvoice = errors.New("invoicing: invoice requires at least one line")
	// ErrAttemptMismatch indicates a validation result for a stale attempt.
	ErrAttemptMismatch = errors.New("invoicing: validation attempt mismatch")
)
