package balances

import (
	"errors"
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

// MountRoutes registers balance endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances/{accountID}/periods/{periodID}", h.get)
	r.Post("/balances/rebuild", h.rebuild)
	r.Get("/balances/verify", h.verify)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	accountID, err := httpx.PathID(r, "accountID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	periodID, err := httpx.PathID(r, "periodID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	branchID, err := httpx.QueryInt(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	snap, err := h.service.GetBalance(r.Context(), tenant, accountID, periodID, branchID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) rebuild(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	res, err := h.service.Rebuild(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	drifts, err := h.service.Verify(r.Context(), tenant)
	if err != nil && !errors.Is(err, ErrDrift) {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(drifts) == 0, "drifts": drifts})
}
