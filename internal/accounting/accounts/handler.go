package accounts

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

// MountRoutes registers chart of accounts endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Get("/accounts/{id}/descendants", h.Descendants)
	r.Get("/cost-centers", h.ListCostCenters)
	r.Post("/cost-centers", h.CreateCostCenter)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	accounts, err := h.service.List(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in CreateAccountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	account, err := h.service.Create(r.Context(), tenant, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) Descendants(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	tree, err := h.service.Tree(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if _, ok := tree.Get(id); !ok {
		httpx.RespondError(w, r, h.logger, ErrAccountNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ancestors":   tree.Ancestors(id),
		"descendants": tree.Descendants(id),
	})
}

func (h *Handler) ListCostCenters(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	centers, err := h.service.ListCostCenters(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cost_centers": centers})
}

func (h *Handler) CreateCostCenter(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in CreateCostCenterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	cc, err := h.service.CreateCostCenter(r.Context(), tenant, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cc)
}
