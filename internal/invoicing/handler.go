package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler wires HTTP endpoints for the invoicing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the invoicing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{invoiceID}", h.handleGet)
	r.Post("/{invoiceID}/submit", h.handleSubmit)
	r.Post("/{invoiceID}/pay", h.handleMarkPaid)
	r.Post("/{invoiceID}/void", h.handleVoid)
}

type createLineRequest struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	Discount  decimal.Decimal `json:"discount"`
}

type createInvoiceRequest struct {
	Number  string              `json:"number" validate:"required,max=50"`
	Client  string              `json:"client" validate:"required,max=200"`
	Date    string              `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate string              `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Lines   []createLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLineResponse struct {
	ItemID    int64           `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Amount    decimal.Decimal `json:"amount"`
}

type invoiceResponse struct {
	ID              int64                 `json:"id"`
	Number          string                `json:"number"`
	Client          string                `json:"client"`
	Date            string                `json:"date"`
	DueDate         string                `json:"due_date,omitempty"`
	Lines           []invoiceLineResponse `json:"lines"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	TaxAmount       decimal.Decimal       `json:"tax_amount"`
	Total           decimal.Decimal       `json:"total"`
	Status          InvoiceStatus         `json:"status"`
	Validation      ValidationState       `json:"validation"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	SaleEntryID     *int64                `json:"sale_entry_id,omitempty"`
	PaymentEntryID  *int64                `json:"payment_entry_id,omitempty"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	lines := make([]invoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, invoiceLineResponse{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
			Amount:    l.Amount(),
		})
	}
	resp := invoiceResponse{
		ID:              inv.ID,
		Number:          inv.Number,
		Client:          inv.Client,
		Date:            inv.Date.Format("2006-01-02"),
		Lines:           lines,
		Subtotal:        inv.Subtotal,
		TaxAmount:       inv.TaxAmount,
		Total:           inv.Total,
		Status:          inv.Status,
		Validation:      inv.Validation,
		RejectionReason: inv.RejectionReason,
		SaleEntryID:     inv.SaleEntryID,
		PaymentEntryID:  inv.PaymentEntryID,
	}
	if !inv.DueDate.IsZero() {
		resp.DueDate = inv.DueDate.Format("2006-01-02")
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid date")
		return
	}
	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			shared.RespondError(w, http.StatusBadRequest, "invalid due date")
			return
		}
	}

	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			ItemID:    l.ItemID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		})
	}
	invoice, err := h.service.Create(r.Context(), CreateInput{
		Number:  req.Number,
		Client:  req.Client,
		Date:    date,
		DueDate: dueDate,
		Lines:   lines,
	})
	if err != nil {
		h.respondServiceError(w, r, "create invoice", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, "list invoices", err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.withInvoiceID(w, r, http.StatusOK, h.service.GetInvoiceState)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.withInvoiceID(w, r, http.StatusAccepted, h.service.Submit)
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	h.withInvoiceID(w, r, http.StatusOK, h.service.MarkPaid)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	h.withInvoiceID(w, r, http.StatusOK, h.service.Void)
}

func (h *Handler) withInvoiceID(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context, invoiceID int64) (Invoice, error)) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	invoice, err := fn(r.Context(), invoiceID)
	if err != nil {
		h.respondServiceError(w, r, "invoice transition", err)
		return
	}
	shared.RespondJSON(w, status, toInvoiceResponse(invoice))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		shared.RespondError(w, http.StatusNotFound, "invoice not found")
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrStockShortage),
		errors.Is(err, ErrAttemptMismatch):
		shared.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyInvoice):
		shared.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrValidationTimeout):
		shared.RespondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
