package periods

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

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

// MountRoutes registers period endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/for-date", h.forDate)
		r.Get("/{id}", h.get)
		r.Post("/{id}/close", h.status(h.service.Close))
		r.Post("/{id}/reopen", h.status(h.service.Reopen))
		r.Post("/{id}/lock", h.status(h.service.Lock))
	})
}

type createRequest struct {
	FiscalYear int    `json:"fiscal_year" validate:"required,gte=1900"`
	Number     int    `json:"period_number" validate:"required,gte=1,lte=366"`
	Name       string `json:"name" validate:"max=100"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	p, err := h.service.Create(r.Context(), tenant, CreateInput{
		FiscalYear: req.FiscalYear, Number: req.Number, Name: req.Name, StartDate: start, EndDate: end,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	year, _ := strconv.Atoi(r.URL.Query().Get("fiscal_year"))
	out, err := h.service.List(r.Context(), tenant, year)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) forDate(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validation("request.invalid_date", "date must be YYYY-MM-DD"))
		return
	}
	p, err := h.service.FindForDate(r.Context(), tenant, date)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": p, "allows_posting": p.AllowsPosting()})
}

func (h *Handler) status(fn func(ctx context.Context, tenant shared.Tenant, id int64) (Period, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		p, err := fn(r.Context(), tenant, id)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	}
}
