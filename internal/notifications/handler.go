package notifications

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Inbox is the read side used by the handler.
type Inbox interface {
	ListUnread(ctx context.Context, userID int64, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
}

// Handler exposes the notification inbox.
type Handler struct {
	logger *slog.Logger
	inbox  Inbox
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, inbox Inbox) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, inbox: inbox}
}

// MountRoutes registers inbox routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/read", h.markRead)
}

type markReadRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "Sign in to view notifications."))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.inbox.ListUnread(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list notifications", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, shared.StorageFailure("load notifications", err))
		return
	}
	if items == nil {
		items = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.Fail(shared.ErrForbidden, "Sign in to update notifications."))
		return
	}
	var req markReadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.inbox.MarkRead(r.Context(), userID, req.IDs)
	if err != nil {
		h.logger.Error("mark notifications read", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, shared.StorageFailure("update notifications", err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"updated": n,
		"message": printer.Sprintf("%d notification(s) marked as read.", n),
	})
}
