package coa

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/balanza-erp/balanza-erp/internal/shared"
)

// Handler exposes the chart of accounts as a read-only endpoint.
type Handler struct {
	logger *slog.Logger
	chart  *Chart
}

func NewHandler(logger *slog.Logger, chart *Chart) *Handler {
	return &Handler{logger: logger, chart: chart}
}

// MountRoutes registers chart routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{code}", h.handleGet)
}

type accountResponse struct {
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Kind          AccountKind `json:"kind"`
	NormalBalance Side        `json:"normal_balance"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		Code:          a.Code,
		Name:          a.Name,
		Kind:          a.Kind,
		NormalBalance: a.Kind.NormalBalance(),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	accounts := h.chart.List()
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	account, err := h.chart.Lookup(chi.URLParam(r, "code"))
	if err != nil {
		shared.RespondError(w, http.StatusNotFound, "account not found")
		return
	}
	shared.RespondJSON(w, http.StatusOK, toAccountResponse(account))
}
