package items

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// Handler serves item lookups for the pick list form.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{code}", h.details)
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	details, err := h.service.Details(r.Context(), code, r.URL.Query().Get("uom"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "item details failed", slog.String("item_code", code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, details)
}
