package quotations

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Handler exposes the status engine over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/status", h.setStatus)
	r.Get("/{id}/eligibility", h.eligibility)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.SetStatus(r.Context(), id, req.Status, actorID)
	if err != nil {
		h.logFailure("set quotation status", id, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) eligibility(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	elig, err := h.service.Eligibility(r.Context(), id)
	if err != nil {
		h.logFailure("quotation eligibility", id, err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, elig)
}

func (h *Handler) logFailure(op string, id int64, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Int64("quotation_id", id), slog.Any("error", err))
		return
	}
	h.logger.Warn(op+" rejected", slog.Int64("quotation_id", id), slog.String("reason", shared.UserSafeMessage(err)))
}
