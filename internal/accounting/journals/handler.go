package journals

import (
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

// MountRoutes registers journal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Get("/{id}/can-post", h.canPost)
		r.Post("/{id}/submit", h.submit)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/void", h.void)
	})
}

const dateLayout = "2006-01-02"

type createRequest struct {
	Type            JournalType `json:"type" validate:"required"`
	TransactionDate string      `json:"transaction_date" validate:"required,datetime=2006-01-02"`
	Description     string      `json:"description" validate:"max=500"`
	Source          *SourceRef  `json:"source,omitempty"`
	Post            bool        `json:"post"`
	Lines           []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type updateRequest struct {
	Version         int         `json:"version" validate:"required,gt=0"`
	TransactionDate string      `json:"transaction_date" validate:"required,datetime=2006-01-02"`
	Description     string      `json:"description" validate:"max=500"`
	Lines           []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type journalResponse struct {
	Journal
	Balanced bool `json:"balanced"`
}

func respond(j Journal) journalResponse {
	return journalResponse{Journal: j, Balanced: j.IsBalanced()}
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
	date, _ := time.Parse(dateLayout, req.TransactionDate)
	in := CreateInput{Type: req.Type, TransactionDate: date, Description: req.Description, Source: req.Source, Lines: req.Lines}
	key := httpx.IdempotencyKey(r)
	if req.Post {
		res, err := h.service.CreateAndPost(r.Context(), tenant, in, key)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		status := http.StatusCreated
		if res.Replay {
			status = http.StatusOK
		}
		httpx.JSON(w, status, respond(res.Journal))
		return
	}
	j, err := h.service.Create(r.Context(), tenant, in, key)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, respond(j))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	date, _ := time.Parse(dateLayout, req.TransactionDate)
	j, err := h.service.UpdateDraft(r.Context(), tenant, id, UpdateInput{
		Version: req.Version, TransactionDate: date, Description: req.Description, Lines: req.Lines,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(j))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	periodID, err := httpx.QueryInt(r, "period_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	filter := ListFilter{PeriodID: periodID, Status: Status(q.Get("status")), Type: JournalType(q.Get("type"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.RespondError(w, r, h.logger, shared.Validation("request.invalid_date", name+" must be YYYY-MM-DD"))
			return
		}
		*dst = &t
	}
	out, page, err := h.service.List(r.Context(), tenant, filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"journals": out, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	j, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(j))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), tenant, id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) canPost(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	can, err := h.service.CanPost(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"can_post": can})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	j, err := h.service.Submit(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(j))
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	j, err := h.service.Post(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, respond(j))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	res, err := h.service.Void(r.Context(), tenant, id, req.Reason)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (shared.Tenant, int64, bool) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return shared.Tenant{}, 0, false
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return shared.Tenant{}, 0, false
	}
	return tenant, id, true
}
