package production

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Handler serves production order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, service: service}
}

type createRequest struct {
	QuotationID      int64  `json:"quotation_id" validate:"required,gt=0"`
	DeliveryDeadline string `json:"delivery_deadline,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type statusRequest struct {
	Status      string `json:"status" validate:"required"`
	Note        string `json:"note,omitempty" validate:"max=2000"`
	NotifyOwner bool   `json:"notify_owner"`
}

type itemUpdateRequest struct {
	ItemID            int64   `json:"item_id" validate:"required,gt=0"`
	CompletedQuantity *int    `json:"completed_quantity,omitempty"`
	Status            string  `json:"status,omitempty"`
	Notes             *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type itemsRequest struct {
	Items  []itemUpdateRequest `json:"items" validate:"required,min=1,dive"`
	Note   string              `json:"note,omitempty" validate:"max=2000"`
	Notify bool                `json:"notify"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	in := CreateRequest{QuotationID: req.QuotationID, ActorID: actorID}
	if req.DeliveryDeadline != "" {
		deadline, err := time.Parse(dateLayout, req.DeliveryDeadline)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: delivery_deadline must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		in.DeliveryDeadline = &deadline
	}
	result, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Progress(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.UpdateStatus(r.Context(), StatusRequest{
		OrderID:     id,
		Status:      req.Status,
		Note:        req.Note,
		NotifyOwner: req.NotifyOwner,
		ActorID:     actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	updates := make([]ItemUpdate, 0, len(req.Items))
	for _, it := range req.Items {
		updates = append(updates, ItemUpdate{
			ItemID:            it.ItemID,
			CompletedQuantity: it.CompletedQuantity,
			Status:            it.Status,
			Notes:             it.Notes,
		})
	}
	result, err := h.service.UpdateItems(r.Context(), ItemsRequest{
		OrderID: id,
		Items:   updates,
		Note:    req.Note,
		Notify:  req.Notify,
		ActorID: actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
