package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ItemUpdate is the caller's view of one item's progress. A nil
// CompletedQuantity leaves the recorded progress untouched.
type ItemUpdate struct {
	ItemID            int64
	CompletedQuantity *int
	Status            string
	Notes             *string
}

// ItemsRequest updates progress on several items of one order.
type ItemsRequest struct {
	OrderID int64
	Items   []ItemUpdate
	Note    string
	Notify  bool
	ActorID int64
}

// ItemsResult describes the outcome of an item update.
type ItemsResult struct {
	OrderID           int64   `json:"production_order_id"`
	Updated           int     `json:"updated_items"`
	Skipped           int     `json:"skipped_items"`
	Clamped           int     `json:"clamped_items"`
	Previous          Status  `json:"previous_status"`
	Status            Status  `json:"status"`
	CompletedQuantity int     `json:"completed_quantity"`
	TotalQuantity     int     `json:"total_quantity"`
	Percent           float64 `json:"percent"`
	Notified          int     `json:"notified"`
	Message           string  `json:"message"`
}

// UpdateItems records partial completion. Quantities are clamped to each
// item's target and item status follows the quantity. Unknown item ids are
// skipped. Order aggregates and status are derived from the items afterwards.
func (s *Service) UpdateItems(ctx context.Context, req ItemsRequest) (result ItemsResult, err error) {
	defer func() { s.metrics.RecordWorkflow("update_production_items", observability.OutcomeOf(err)) }()

	for _, u := range req.Items {
		if u.Status != "" && !ItemStatus(strings.ToLower(u.Status)).Valid() {
			return ItemsResult{}, shared.Fail(shared.ErrInvalidStatus,
				"%q is not a valid item status. Use pending or completed.", u.Status)
		}
	}
	note := strings.TrimSpace(req.Note)

	var created []notifications.Notification
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, req.OrderID)
		if errors.Is(err, ErrNotFound) {
			return orderNotFound(req.OrderID)
		}
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return shared.Fail(shared.ErrNotModifiable,
				"Production order #%d is %s; its items can no longer be changed.", order.ID, order.Status)
		}

		result = ItemsResult{OrderID: order.ID, Previous: order.Status}
		index := make(map[int64]int, len(order.Items))
		for i, it := range order.Items {
			index[it.ID] = i
		}
		for _, u := range req.Items {
			pos, ok := index[u.ItemID]
			if !ok {
				result.Skipped++
				continue
			}
			it := &order.Items[pos]
			changed := false
			if u.CompletedQuantity != nil {
				if v := *u.CompletedQuantity; v > it.Quantity || v < 0 {
					result.Clamped++
				}
				changed = it.SetCompleted(*u.CompletedQuantity)
			}
			if u.Notes != nil && strings.TrimSpace(*u.Notes) != it.Notes {
				it.Notes = strings.TrimSpace(*u.Notes)
				changed = true
			}
			if !changed {
				continue
			}
			if err := tx.UpdateItem(ctx, *it); err != nil {
				return err
			}
			result.Updated++
		}

		order.Recompute()
		now := s.clock.Now()
		var events []AuditEntry
		if next := nextOrderStatus(order); next != order.Status {
			events = append(events, AuditEntry{
				At: now, Kind: EventStatusChanged, FromStatus: order.Status, ToStatus: next,
				ActorID: req.ActorID, Message: "derived from item progress",
			})
			order.Status = next
		}
		if note != "" {
			events = append(events, AuditEntry{At: now, Kind: EventNote, ActorID: req.ActorID, Message: note})
		}
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, order.ID, events); err != nil {
			return err
		}

		result.Status = order.Status
		result.CompletedQuantity = order.CompletedQuantity
		result.TotalQuantity = order.TotalQuantity
		result.Percent = Percent(order.CompletedQuantity, order.TotalQuantity)

		if req.Notify && order.OwnerID > 0 {
			message := notifications.ProgressUpdated(order.QuotationRef, order.CompletedQuantity, order.TotalQuantity, result.Percent, note)
			created, err = tx.InsertNotifications(ctx, notifications.FanOut([]int64{order.OwnerID}, order.ID, notifications.RelatedProductionOrder, message))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure("update production items", slog.Int64("order_id", req.OrderID), err)
		return ItemsResult{}, shared.StorageFailure("save item progress", err)
	}

	s.relay.Relay(ctx, created)
	result.Notified = len(created)
	result.Message = describeItems(result)
	s.logger.Info("production items updated",
		slog.Int64("order_id", result.OrderID),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.String("status", string(result.Status)),
		slog.Float64("percent", result.Percent),
	)
	return result, nil
}

// nextOrderStatus derives the order status after item progress changed.
func nextOrderStatus(order *Order) Status {
	switch {
	case order.AllItemsCompleted():
		return StatusCompleted
	case order.Status == StatusPending && order.CompletedQuantity > 0:
		return StatusInProgress
	default:
		return order.Status
	}
}

func describeItems(r ItemsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Updated %d item(s) on production order #%d: %d of %d units done (%.1f%%).",
		r.Updated, r.OrderID, r.CompletedQuantity, r.TotalQuantity, r.Percent)
	if r.Clamped > 0 {
		fmt.Fprintf(&b, " %d quantity value(s) were limited to the item target.", r.Clamped)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(&b, " %d unknown item(s) ignored.", r.Skipped)
	}
	if r.Status != r.Previous {
		fmt.Fprintf(&b, " Order is now %s.", notifications.Humanize(string(r.Status)))
	}
	if r.Notified > 0 {
		b.WriteString(" The quotation owner was notified.")
	}
	return b.String()
}
