package picklist

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
)

// Handler exposes pick list endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers pick list routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pick-lists", h.create)
	r.Route("/pick-lists/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Put("/", h.update)
		r.Post("/set-item-locations", h.setItemLocations)
		r.Post("/submit", h.submit)
		r.Post("/cancel", h.cancel)
		r.Get("/print", h.print)
	})
}

type allocationResponse struct {
	PickList   PickList         `json:"pick_list"`
	Allocation AllocationResult `json:"allocation"`
	Message    string           `json:"message,omitempty"`
}

type updateRequest struct {
	Locations []LocationInput `json:"locations" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pl, result, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(r, w, "create pick list", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, allocationResponse{PickList: pl, Allocation: result, Message: result.Message()})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	pl, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(r, w, "get pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pl, result, err := h.service.Update(r.Context(), id, req.Locations)
	if err != nil {
		h.fail(r, w, "update pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocationResponse{PickList: pl, Allocation: result, Message: result.Message()})
}

func (h *Handler) setItemLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	pl, result, err := h.service.Reallocate(r.Context(), id)
	if err != nil {
		h.fail(r, w, "set item locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocationResponse{PickList: pl, Allocation: result, Message: result.Message()})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	pl, err := h.service.Submit(r.Context(), id)
	if err != nil {
		h.fail(r, w, "submit pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	pl, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.fail(r, w, "cancel pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	pl, err := h.service.PrintView(r.Context(), id)
	if err != nil {
		h.fail(r, w, "print pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) validate(v any) error {
	if err := h.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", httpx.ErrValidation, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(r *http.Request, w http.ResponseWriter, op string, err error) {
	h.logger.WarnContext(r.Context(), op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pick list id")
		return 0, false
	}
	return id, true
}
