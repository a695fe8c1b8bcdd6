package reports

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports/{periodID}", func(r chi.Router) {
		r.Get("/trial-balance", serve(h, h.service.TrialBalance))
		r.Get("/profit-and-loss", serve(h, h.service.ProfitAndLoss))
		r.Get("/balance-sheet", serve(h, h.service.BalanceSheet))
	})
}

func serve[T any](h *Handler, fn func(context.Context, shared.Tenant, int64, *int64) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := httpx.TenantFromRequest(r)
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
		out, err := fn(r.Context(), tenant, periodID, branchID)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}
