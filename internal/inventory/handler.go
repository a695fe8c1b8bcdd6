package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes the stock ledger over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/warehouses", h.listWarehouses)
		r.Post("/warehouses", h.createWarehouse)
		r.Post("/receipts", h.addStock)
		r.Post("/issues", h.removeStock)
		r.Post("/transfers", h.transfer)
		r.Post("/reservations", h.reserve)
		r.Post("/reservations/release", h.release)
		r.Get("/movements/{id}", h.getMovement)
		r.Post("/movements/{id}/journal", h.linkJournal)
		r.Get("/stock", h.stockLevel)
		r.Get("/stock-card", h.stockCard)
	})
}

const dateLayout = "2006-01-02"

type movementRequest struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouse_id" validate:"required,gt=0"`
	Unit         string          `json:"unit" validate:"required,max=16"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Type         MovementType    `json:"type" validate:"required"`
	MovementDate string          `json:"movement_date" validate:"omitempty,datetime=2006-01-02"`
	Source       *SourceRef      `json:"source,omitempty"`
	Note         string          `json:"note" validate:"max=500"`
}

type transferRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required,gt=0,nefield=FromWarehouseID"`
	Unit            string          `json:"unit" validate:"required,max=16"`
	Quantity        decimal.Decimal `json:"quantity"`
	MovementDate    string          `json:"movement_date" validate:"omitempty,datetime=2006-01-02"`
	Source          *SourceRef      `json:"source,omitempty"`
	Note            string          `json:"note" validate:"max=500"`
}

type linkRequest struct {
	JournalID int64 `json:"journal_id" validate:"required,gt=0"`
}

type levelResponse struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID *int64          `json:"warehouse_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
	Value       decimal.Decimal `json:"value"`
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, _ := time.Parse(dateLayout, raw)
	return t
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req ProductInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), tenant, req)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.ListProducts(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req WarehouseInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	wh, err := h.service.CreateWarehouse(r.Context(), tenant, req)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.ListWarehouses(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": out})
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	m, err := h.service.AddStock(r.Context(), tenant, AddStockInput{
		ProductID: req.ProductID, WarehouseID: req.WarehouseID, Unit: req.Unit, Quantity: req.Quantity,
		UnitCost: req.UnitCost, Type: req.Type, MovementDate: parseDate(req.MovementDate), Source: req.Source, Note: req.Note,
	}, httpx.IdempotencyKey(r))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) removeStock(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	m, err := h.service.RemoveStock(r.Context(), tenant, RemoveStockInput{
		ProductID: req.ProductID, WarehouseID: req.WarehouseID, Unit: req.Unit, Quantity: req.Quantity,
		Type: req.Type, MovementDate: parseDate(req.MovementDate), Source: req.Source, Note: req.Note,
	}, httpx.IdempotencyKey(r))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	res, err := h.service.Transfer(r.Context(), tenant, TransferInput{
		ProductID: req.ProductID, FromWarehouseID: req.FromWarehouseID, ToWarehouseID: req.ToWarehouseID, Unit: req.Unit,
		Quantity: req.Quantity, MovementDate: parseDate(req.MovementDate), Source: req.Source, Note: req.Note,
	}, httpx.IdempotencyKey(r))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.reservation(w, r, h.service.Reserve)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.reservation(w, r, h.service.Release)
}

func (h *Handler) reservation(w http.ResponseWriter, r *http.Request, apply func(context.Context, shared.Tenant, ReserveInput) (StockItem, error)) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req ReserveInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	item, err := apply(r.Context(), tenant, req)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	m, err := h.service.GetMovement(r.Context(), tenant, id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) linkJournal(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	m, err := h.service.LinkJournal(r.Context(), tenant, id, req.JournalID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) stockLevel(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	q, err := stockQuery(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	lvl, err := h.service.StockLevel(r.Context(), tenant, q)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, levelResponse{
		ProductID:   q.ProductID,
		WarehouseID: q.WarehouseID,
		Quantity:    lvl.Quantity,
		Reserved:    lvl.Reserved,
		Available:   lvl.Available(),
		Value:       shared.RoundMoney(lvl.Value),
	})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	tenant, err := httpx.TenantFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	q, err := stockQuery(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	filter := MovementFilter{ProductID: q.ProductID, WarehouseID: q.WarehouseID}
	values := r.URL.Query()
	filter.Page, _ = strconv.Atoi(values.Get("page"))
	filter.PerPage, _ = strconv.Atoi(values.Get("per_page"))
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := values.Get(name)
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
	entries, page, err := h.service.ListMovements(r.Context(), tenant, filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "pagination": page})
}

func stockQuery(r *http.Request) (StockQuery, error) {
	product, err := httpx.QueryInt(r, "product_id")
	if err != nil {
		return StockQuery{}, err
	}
	if product == nil {
		return StockQuery{}, shared.Validation("request.product_required", "product_id is required")
	}
	warehouse, err := httpx.QueryInt(r, "warehouse_id")
	if err != nil {
		return StockQuery{}, err
	}
	return StockQuery{ProductID: *product, WarehouseID: warehouse, Unit: r.URL.Query().Get("unit")}, nil
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
