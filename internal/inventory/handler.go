package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inbound", h.handleInbound)
	r.Post("/outbound", h.handleOutbound)
	r.Post("/adjustments", h.handleAdjustment)
	r.Get("/items/{itemID}", h.handleGetItem)
	r.Get("/items/{itemID}/movements", h.handleMovements)
}

type inboundRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Reason      string          `json:"reason" validate:"omitempty,oneof=PURCHASE RETURN_IN MANUAL_ADJUSTMENT"`
	DocumentRef string          `json:"document_ref" validate:"max=100"`
}

type outboundRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	Reason      string          `json:"reason" validate:"omitempty,oneof=SALE LOSS RETURN_OUT MANUAL_ADJUSTMENT"`
	DocumentRef string          `json:"document_ref" validate:"max=100"`
}

type adjustmentRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Delta       decimal.Decimal `json:"delta" validate:"required"`
	DocumentRef string          `json:"document_ref" validate:"max=100"`
}

type itemResponse struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	BookValue      decimal.Decimal `json:"book_value"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	BelowMin       bool            `json:"below_min"`
}

type movementResponse struct {
	ID             int64           `json:"id"`
	Date           string          `json:"date"`
	Kind           MovementKind    `json:"kind"`
	ItemID         int64           `json:"item_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Reason         ReasonCode      `json:"reason"`
	DocumentRef    string          `json:"document_ref,omitempty"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	EntryID        int64           `json:"entry_id"`
}

type movementResult struct {
	Movement movementResponse `json:"movement"`
	EntryID  int64            `json:"entry_id"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:             item.ID,
		Code:           item.Code,
		Name:           item.Name,
		QuantityOnHand: item.QuantityOnHand,
		AverageCost:    item.AverageCost,
		BookValue:      item.BookValue(),
		SalePrice:      item.SalePrice,
		BelowMin:       item.BelowMin(),
	}
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:             m.ID,
		Date:           m.Date.Format("2006-01-02"),
		Kind:           m.Kind,
		ItemID:         m.ItemID,
		Quantity:       m.Quantity,
		UnitCost:       m.UnitCost,
		Reason:         m.Reason,
		DocumentRef:    m.DocumentRef,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		EntryID:        m.EntryID,
	}
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if !h.decode(w, r, &req) {
		return
	}
	reason := ReasonCode(req.Reason)
	if reason == "" {
		reason = ReasonPurchase
	}
	movement, entry, err := h.service.ApplyInbound(r.Context(), InboundInput{
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		Reason:      reason,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		h.respondServiceError(w, r, "apply inbound", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, movementResult{Movement: toMovementResponse(movement), EntryID: entry.ID})
}

func (h *Handler) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var req outboundRequest
	if !h.decode(w, r, &req) {
		return
	}
	reason := ReasonCode(req.Reason)
	if reason == "" {
		reason = ReasonSale
	}
	movement, entry, err := h.service.ApplyOutbound(r.Context(), OutboundInput{
		ItemID:      req.ItemID,
		Quantity:    req.Quantity,
		Reason:      reason,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		h.respondServiceError(w, r, "apply outbound", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, movementResult{Movement: toMovementResponse(movement), EntryID: entry.ID})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, entry, err := h.service.ApplyAdjustment(r.Context(), AdjustmentInput{
		ItemID:      req.ItemID,
		Delta:       req.Delta,
		Reason:      ReasonManualAdjustment,
		DocumentRef: req.DocumentRef,
	})
	if err != nil {
		h.respondServiceError(w, r, "apply adjustment", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, movementResult{Movement: toMovementResponse(movement), EntryID: entry.ID})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	item, err := h.service.GetItemState(r.Context(), itemID)
	if err != nil {
		h.respondServiceError(w, r, "get item", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	movements, err := h.service.ListMovements(r.Context(), itemID, limit)
	if err != nil {
		h.respondServiceError(w, r, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		shared.RespondError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, ErrInsufficientStock):
		shared.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrInvalidReason):
		shared.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
