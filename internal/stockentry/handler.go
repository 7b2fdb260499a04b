package stockentry

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// Handler exposes stock entry endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pick-lists/{id}/stock-entry", h.create)
	r.Get("/pick-lists/{id}/stock-entry", h.show)
	r.Get("/work-orders/pending", h.pendingWorkOrders)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.CreateStockEntry(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create stock entry failed", slog.Int64("pick_list_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) pendingWorkOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := WorkOrderFilter{Query: q.Get("q")}
	filter.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	orders, err := h.service.PendingWorkOrders(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if orders == nil {
		orders = []PendingWorkOrder{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pick list id")
		return 0, false
	}
	return id, true
}
