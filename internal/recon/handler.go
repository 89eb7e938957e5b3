package recon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/ledger"
	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler wires HTTP endpoints for bank reconciliation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/diff", h.handleDiff)
	r.Post("/adjustments", h.handleAdjustments)
}

type bankMovementRequest struct {
	ID          string          `json:"id" validate:"required,max=100"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Reference   string          `json:"reference" validate:"max=100"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

type statementRequest struct {
	From      string                `json:"from" validate:"required,datetime=2006-01-02"`
	To        string                `json:"to" validate:"required,datetime=2006-01-02"`
	Movements []bankMovementRequest `json:"movements" validate:"required,min=1,dive"`
}

type adjustmentsRequest struct {
	Movements []bankMovementRequest `json:"movements" validate:"required,min=1,dive"`
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req statementRequest
	if !h.decode(w, r, &req) {
		return
	}
	stmt, err := req.toStatement()
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.service.Reconcile(r.Context(), stmt)
	if err != nil {
		h.respondServiceError(w, r, "reconcile statement", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	var req adjustmentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	movements, err := toBankMovements(req.Movements)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	adjustments, err := h.service.PostAdjustments(r.Context(), movements)
	if err != nil {
		h.respondServiceError(w, r, "post adjustments", err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, adjustmentResponse{BankMovementID: a.Bank.ID, EntryID: a.EntryID})
	}
	shared.RespondJSON(w, http.StatusCreated, map[string]any{"adjustments": out})
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
	case errors.Is(err, ErrEmptyStatement), errors.Is(err, ErrInvalidRange):
		shared.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrUnknownAccount):
		shared.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (req statementRequest) toStatement() (Statement, error) {
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		return Statement{}, errors.New("invalid from date")
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		return Statement{}, errors.New("invalid to date")
	}
	movements, err := toBankMovements(req.Movements)
	if err != nil {
		return Statement{}, err
	}
	return Statement{From: from, To: to, Movements: movements}, nil
}

func toBankMovements(reqs []bankMovementRequest) ([]BankMovement, error) {
	movements := make([]BankMovement, 0, len(reqs))
	for _, m := range reqs {
		date, err := time.Parse("2006-01-02", m.Date)
		if err != nil {
			return nil, errors.New("invalid movement date")
		}
		movements = append(movements, BankMovement{
			ID:          m.ID,
			Date:        date,
			Reference:   m.Reference,
			Description: m.Description,
			Amount:      m.Amount,
		})
	}
	return movements, nil
}

type bankMovementResponse struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type ledgerMovementResponse struct {
	EntryID     int64           `json:"entry_id"`
	EntryNumber int64           `json:"entry_number"`
	Date        string          `json:"date"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Memo        string          `json:"memo,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type matchResponse struct {
	Bank   bankMovementResponse   `json:"bank"`
	Ledger ledgerMovementResponse `json:"ledger"`
}

type resultResponse struct {
	Matches         []matchResponse          `json:"matches"`
	UnmatchedBank   []bankMovementResponse   `json:"unmatched_bank"`
	UnmatchedLedger []ledgerMovementResponse `json:"unmatched_ledger"`
}

type adjustmentResponse struct {
	BankMovementID string `json:"bank_movement_id"`
	EntryID        int64  `json:"entry_id"`
}

func toResultResponse(result Result) resultResponse {
	resp := resultResponse{
		Matches:         make([]matchResponse, 0, len(result.Matches)),
		UnmatchedBank:   make([]bankMovementResponse, 0, len(result.UnmatchedBank)),
		UnmatchedLedger: make([]ledgerMovementResponse, 0, len(result.UnmatchedLedger)),
	}
	for _, m := range result.Matches {
		resp.Matches = append(resp.Matches, matchResponse{
			Bank:   toBankMovementResponse(m.Bank),
			Ledger: toLedgerMovementResponse(m.Ledger),
		})
	}
	for _, b := range result.UnmatchedBank {
		resp.UnmatchedBank = append(resp.UnmatchedBank, toBankMovementResponse(b))
	}
	for _, l := range result.UnmatchedLedger {
		resp.UnmatchedLedger = append(resp.UnmatchedLedger, toLedgerMovementResponse(l))
	}
	return resp
}

func toBankMovementResponse(b BankMovement) bankMovementResponse {
	return bankMovementResponse{
		ID:          b.ID,
		Date:        b.Date.Format("2006-01-02"),
		Reference:   b.Reference,
		Description: b.Description,
		Amount:      b.Amount,
	}
}

func toLedgerMovementResponse(l LedgerMovement) ledgerMovementResponse {
	return ledgerMovementResponse{
		EntryID:     l.EntryID,
		EntryNumber: l.EntryNumber,
		Date:        l.Date.Format("2006-01-02"),
		ReferenceID: l.ReferenceID,
		Memo:        l.Memo,
		Amount:      l.Amount,
	}
}
