package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler wires HTTP endpoints for the journal.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the journal handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handlePost)
	r.Get("/", h.handleQuery)
	r.Get("/{entryID}", h.handleGet)
	r.Post("/{entryID}/void", h.handleVoid)
}

type lineRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type postEntryRequest struct {
	Date        string        `json:"date" validate:"required,datetime=2006-01-02"`
	Memo        string        `json:"memo" validate:"max=500"`
	ReferenceID string        `json:"reference_id" validate:"max=100"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type lineResponse struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type entryResponse struct {
	ID          int64          `json:"id"`
	Number      int64          `json:"number"`
	Date        string         `json:"date"`
	Memo        string         `json:"memo,omitempty"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Status      EntryStatus    `json:"status"`
	Origin      EntryOrigin    `json:"origin"`
	ReversalOf  *int64         `json:"reversal_of,omitempty"`
	Lines       []lineResponse `json:"lines"`
}

func toEntryResponse(entry JournalEntry) entryResponse {
	lines := make([]lineResponse, 0, len(entry.Lines))
	for _, l := range entry.Lines {
		lines = append(lines, lineResponse{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit})
	}
	return entryResponse{
		ID:          entry.ID,
		Number:      entry.Number,
		Date:        entry.Date.Format("2006-01-02"),
		Memo:        entry.Memo,
		ReferenceID: entry.ReferenceID,
		Status:      entry.Status,
		Origin:      entry.Origin,
		ReversalOf:  entry.ReversalOf,
		Lines:       lines,
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
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

	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{AccountCode: l.AccountCode, Debit: l.Debit, Credit: l.Credit})
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		Date:        date,
		Memo:        req.Memo,
		ReferenceID: req.ReferenceID,
		Origin:      OriginManual,
		SourceID:    uuid.New(),
		Lines:       lines,
	})
	if err != nil {
		h.respondServiceError(w, r, "post entry", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, "query entries", err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(entries))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(entries) {
		start = len(entries)
	}
	end := start + pagination.PerPage
	if end > len(entries) {
		end = len(entries)
	}

	out := make([]entryResponse, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, toEntryResponse(e))
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), entryID)
	if err != nil {
		h.respondServiceError(w, r, "get entry", err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	reversal, err := h.service.Void(r.Context(), entryID)
	if err != nil {
		h.respondServiceError(w, r, "void entry", err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toEntryResponse(reversal))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		shared.RespondError(w, http.StatusNotFound, "entry not found")
	case errors.Is(err, ErrInvalidStatus):
		shared.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrMalformedLine),
		errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrUnknownAccount):
		shared.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func parseEntryFilter(r *http.Request) (EntryFilter, error) {
	var filter EntryFilter
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return EntryFilter{}, errors.New("invalid from date")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return EntryFilter{}, errors.New("invalid to date")
		}
		filter.To = t
	}
	filter.AccountCode = q.Get("account_code")
	filter.ReferenceID = q.Get("reference_id")
	return filter, nil
}
