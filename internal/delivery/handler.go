package delivery

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/fulfillment/internal/picklist"
	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// Handler exposes delivery note endpoints under a pick list.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers delivery note routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pick-lists/{id}/delivery-notes", h.create)
	r.Get("/pick-lists/{id}/delivery-notes", h.list)
	r.Get("/pick-lists/{id}/target-exists", h.targetExists)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	requestID := ""
	if raw := r.Header.Get("Idempotency-Key"); raw != "" {
		key, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: Idempotency-Key must be a UUID", httpx.ErrBadRequest))
			return
		}
		requestID = key.String()
	}
	notes, err := h.service.CreateDeliveryNotes(r.Context(), id, requestID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create delivery notes failed", slog.Int64("pick_list_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"delivery_notes": notes,
		"message":        "Delivery Note(s) created for the Pick List",
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	notes, err := h.service.List(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if notes == nil {
		notes = []DeliveryNoteDraft{}
	}
	httpx.JSON(w, http.StatusOK, notes)
}

func (h *Handler) targetExists(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	purpose := picklist.Purpose(r.URL.Query().Get("purpose"))
	exists, err := h.service.TargetDocumentExists(r.Context(), id, purpose)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pick list id")
		return 0, false
	}
	return id, true
}
