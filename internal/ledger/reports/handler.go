package reports

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler wires the read-only report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/balance-sheet", h.handleBalanceSheet)
	r.Get("/balanced", h.handleBalanced)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.ComputeTrialBalance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "compute trial balance", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"rows":         tb.Rows,
		"total_debit":  tb.TotalDebit,
		"total_credit": tb.TotalCredit,
		"balanced":     tb.Balanced(),
	})
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	bs, err := h.service.ComputeBalanceSheet(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "compute balance sheet", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	shared.RespondJSON(w, http.StatusOK, bs)
}

func (h *Handler) handleBalanced(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.IsBalanced(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "check balance", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]bool{"balanced": ok})
}
