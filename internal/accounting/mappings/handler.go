package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers mapping endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/account-mappings", h.list)
	r.Put("/account-mappings", h.set)
}

type setRequest struct {
	Module    string `json:"module" validate:"required,max=50"`
	Key       string `json:"key" validate:"required,max=100"`
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.List(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": out})
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req setRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	m, err := h.service.Set(r.Context(), tenant, req.Module, req.Key, req.AccountID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}
