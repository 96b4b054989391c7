package invoicing

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler serves invoice payment endpoints.
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

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.balance)
	r.Get("/{id}/payments", h.listPayments)
	r.Post("/{id}/payments", h.addPayment)
}

type paymentRequest struct {
	Date        string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"required,max=64"`
	Reference   string          `json:"reference,omitempty" validate:"max=128"`
	Notes       string          `json:"notes,omitempty" validate:"max=2000"`
	NotifyOwner bool            `json:"notify_owner"`
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	in := PaymentRequest{
		InvoiceID:   id,
		Amount:      req.Amount,
		Method:      req.Method,
		Reference:   req.Reference,
		Notes:       req.Notes,
		NotifyOwner: req.NotifyOwner,
		ActorID:     actorID,
	}
	if req.Date != "" {
		day, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		in.Date = day
	}
	result, err := h.service.AddPayment(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Balance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}
