package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fulfillment/internal/catalog"
	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/clock"
	"github.com/odyssey-erp/fulfillment/internal/platform/lock"
	"github.com/odyssey-erp/fulfillment/internal/quotations"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const dateLayout = "2006-01-02"

// Directory enumerates notification recipients by role.
type Directory interface {
	ListIDsByRole(ctx context.Context, role string) ([]int64, error)
}

// Catalog resolves item names for copy-on-create.
type Catalog interface {
	Lookup(ctx context.Context, itemType catalog.ItemType, itemID int64) (catalog.Entry, error)
}

// Locker guards order creation across processes.
type Locker interface {
	Obtain(ctx context.Context, key string) (lock.Releaser, error)
}

// Config holds workflow settings.
type Config struct {
	ProductionRole      string
	DefaultLeadTimeDays int
}

// Service orchestrates production orders.
type Service struct {
	repo      Repository
	directory Directory
	cfg       Config
	logger    *slog.Logger
	catalog   Catalog
	locker    Locker
	relay     notifications.Relayer
	clock     clock.Clock
	metrics   observability.WorkflowRecorder
	reads     singleflight.Group
}

// NewService creates a new service.
func NewService(repo Repository, directory Directory, cfg Config, logger *slog.Logger) *Service {
	if cfg.ProductionRole == "" {
		cfg.ProductionRole = "production"
	}
	if cfg.DefaultLeadTimeDays <= 0 {
		cfg.DefaultLeadTimeDays = quotations.DefaultLeadTimeDays
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:      repo,
		directory: directory,
		cfg:       cfg,
		logger:    logger,
		relay:     notifications.NopRelayer{},
		clock:     clock.System{},
		metrics:   observability.NopRecorder{},
	}
}

// SetCatalog enables name/code snapshots on order items.
func (s *Service) SetCatalog(c Catalog) { s.catalog = c }

// SetLocker sets the distributed lock used around creation.
func (s *Service) SetLocker(l Locker) { s.locker = l }

// SetRelayer sets the post-commit notification relay.
func (s *Service) SetRelayer(r notifications.Relayer) {
	if r != nil {
		s.relay = r
	}
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(c clock.Clock) {
	if c != nil {
		s.clock = c
	}
}

// SetMetrics sets the workflow outcome recorder.
func (s *Service) SetMetrics(m observability.WorkflowRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// CreateRequest asks for a production order for an accepted quotation.
type CreateRequest struct {
	QuotationID      int64
	DeliveryDeadline *time.Time
	ActorID          int64
}

// CreateResult describes a created order.
type CreateResult struct {
	Order    *Order `json:"order"`
	Notified int    `json:"notified"`
	Message  string `json:"message"`
}

// Create opens the production order of an accepted quotation. Checks run in
// order: quotation exists, is accepted, has no order yet, has items.
func (s *Service) Create(ctx context.Context, req CreateRequest) (result CreateResult, err error) {
	defer func() { s.metrics.RecordWorkflow("create_production_order", observability.OutcomeOf(err)) }()

	release := s.obtainLock(ctx, req.QuotationID)
	defer release()

	var created []notifications.Notification
	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.LoadQuotation(ctx, req.QuotationID)
		if errors.Is(err, ErrQuotationNotFound) {
			return shared.Fail(shared.ErrNotFound, "Quotation %d does not exist.", req.QuotationID)
		}
		if err != nil {
			return err
		}
		if quote.Status != quotations.StatusAccepted {
			return shared.Fail(shared.ErrNotAccepted,
				"Quotation %s is %s. Only accepted quotations can go into production.", quote.Reference, quote.Status)
		}
		exists, err := tx.OrderExistsForQuotation(ctx, quote.ID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExists(quote.Reference)
		}
		if len(quote.Items) == 0 {
			return shared.Fail(shared.ErrNoItems, "Quotation %s has no items to produce.", quote.Reference)
		}

		now := s.clock.Now()
		deadline := clock.StartOfDay(now).AddDate(0, 0, quote.LeadTime(s.cfg.DefaultLeadTimeDays))
		if req.DeliveryDeadline != nil {
			deadline = *req.DeliveryDeadline
		}

		order = Order{
			QuotationID:      quote.ID,
			QuotationRef:     quote.Reference,
			CustomerName:     quote.CustomerName,
			OwnerID:          quote.OwnerID,
			Status:           StatusPending,
			DeliveryDeadline: deadline,
			TotalQuantity:    quote.TotalQuantity(),
			CreatedBy:        req.ActorID,
		}
		order, err = tx.InsertOrder(ctx, order)
		if errors.Is(err, ErrDuplicateOrder) {
			return alreadyExists(quote.Reference)
		}
		if err != nil {
			return err
		}
		order.QuotationRef, order.CustomerName, order.OwnerID = quote.Reference, quote.CustomerName, quote.OwnerID

		for _, qi := range quote.Items {
			item := Item{
				OrderID:         order.ID,
				QuotationItemID: qi.ID,
				ItemType:        qi.ItemType,
				ItemID:          qi.ItemID,
				Quantity:        qi.Quantity,
				Status:          ItemPending,
			}
			item.Name, item.Code, err = s.snapshot(ctx, qi.ItemType, qi.ItemID)
			if err != nil {
				return err
			}
			item.ID, err = tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}
		order.Recompute()

		seed := AuditEntry{
			OrderID: order.ID,
			At:      now,
			Kind:    EventCreated,
			ActorID: req.ActorID,
			Message: fmt.Sprintf("Production order created at %s from quotation %s; delivery deadline %s.",
				now.Format("2006-01-02 15:04"), quote.Reference, deadline.Format(dateLayout)),
		}
		if err := tx.AppendEvents(ctx, order.ID, []AuditEntry{seed}); err != nil {
			return err
		}
		order.Events = []AuditEntry{seed}

		recipients, err := s.directory.ListIDsByRole(ctx, s.cfg.ProductionRole)
		if err != nil {
			return fmt.Errorf("list %s users: %w", s.cfg.ProductionRole, err)
		}
		message := notifications.OrderCreated(quote.Reference, quote.CustomerName, deadline)
		created, err = tx.InsertNotifications(ctx, notifications.FanOut(recipients, order.ID, notifications.RelatedProductionOrder, message))
		return err
	})
	if err != nil {
		s.logFailure("create production order", slog.Int64("quotation_id", req.QuotationID), err)
		return CreateResult{}, shared.StorageFailure("create the production order", err)
	}

	s.relay.Relay(ctx, created)
	if len(created) == 0 {
		s.logger.Warn("production order created without recipients", slog.String("role", s.cfg.ProductionRole), slog.Int64("order_id", order.ID))
	}
	s.logger.Info("production order created",
		slog.Int64("order_id", order.ID),
		slog.Int64("quotation_id", order.QuotationID),
		slog.Int("total_quantity", order.TotalQuantity),
		slog.Int("notified", len(created)),
	)
	return CreateResult{
		Order:    &order,
		Notified: len(created),
		Message: fmt.Sprintf("Production order #%d created for quotation %s with %d item(s), due %s. %d production user(s) notified.",
			order.ID, order.QuotationRef, len(order.Items), order.DeliveryDeadline.Format(dateLayout), len(created)),
	}, nil
}

// StatusRequest moves an order to a new status.
type StatusRequest struct {
	OrderID     int64
	Status      string
	Note        string
	NotifyOwner bool
	ActorID     int64
}

// StatusResult describes a status update.
type StatusResult struct {
	OrderID        int64  `json:"production_order_id"`
	Previous       Status `json:"previous_status"`
	Status         Status `json:"status"`
	ItemsCompleted int    `json:"items_force_completed"`
	Notified       int    `json:"notified"`
	Message        string `json:"message"`
}

// UpdateStatus applies a direct status transition. Completing a non-terminal
// order forces every item to full quantity.
func (s *Service) UpdateStatus(ctx context.Context, req StatusRequest) (result StatusResult, err error) {
	defer func() { s.metrics.RecordWorkflow("update_production_order_status", observability.OutcomeOf(err)) }()

	next := Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if !next.Valid() {
		return StatusResult{}, shared.Fail(shared.ErrInvalidStatus,
			"%q is not a valid production order status. Use one of: pending, in_progress, completed, cancelled.", req.Status)
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

		now := s.clock.Now()
		result = StatusResult{OrderID: order.ID, Previous: order.Status, Status: next}
		var events []AuditEntry

		if order.Status == next {
			if note != "" {
				events = append(events, AuditEntry{At: now, Kind: EventNote, ActorID: req.ActorID, Message: note})
			}
		} else {
			if next == StatusCompleted && !order.Status.Terminal() {
				for i := range order.Items {
					it := &order.Items[i]
					if it.Status == ItemCompleted && it.CompletedQuantity >= it.Quantity {
						continue
					}
					it.SetCompleted(it.Quantity)
					if err := tx.UpdateItem(ctx, *it); err != nil {
						return err
					}
					result.ItemsCompleted++
				}
			}
			events = append(events, AuditEntry{
				At: now, Kind: EventStatusChanged, FromStatus: order.Status, ToStatus: next,
				ActorID: req.ActorID, Message: note,
			})
			order.Status = next
		}

		order.Recompute()
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, order.ID, events); err != nil {
			return err
		}

		if req.NotifyOwner && order.OwnerID > 0 {
			message := notifications.OrderStatusChanged(order.QuotationRef, string(next), note)
			created, err = tx.InsertNotifications(ctx, notifications.FanOut([]int64{order.OwnerID}, order.ID, notifications.RelatedProductionOrder, message))
			if err != nil {
				return err
			}
		}

		result.Message = describeStatusChange(order.ID, result, note)
		return nil
	})
	if err != nil {
		s.logFailure("update production order status", slog.Int64("order_id", req.OrderID), err)
		return StatusResult{}, shared.StorageFailure("update the production order", err)
	}

	s.relay.Relay(ctx, created)
	result.Notified = len(created)
	if result.Notified > 0 {
		result.Message += " The quotation owner was notified."
	}
	s.logger.Info("production order status updated",
		slog.Int64("order_id", result.OrderID),
		slog.String("from", string(result.Previous)),
		slog.String("to", string(result.Status)),
		slog.Int("items_force_completed", result.ItemsCompleted),
	)
	return result, nil
}

// readTimeout bounds a coalesced load once it is detached from its caller.
const readTimeout = 5 * time.Second

// coalesce shares one load per key between concurrent callers. The load runs
// on a context detached from whichever caller started it; each caller still
// stops waiting when its own context ends.
func (s *Service) coalesce(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	ch := s.reads.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Get returns an order with items and audit trail.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	v, err := s.coalesce(ctx, "order:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		order, err := s.repo.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, orderNotFound(id)
		}
		if err != nil {
			return nil, shared.StorageFailure("load the production order", err)
		}
		return order, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order).clone(), nil
}

// Progress returns the completion view of an order.
func (s *Service) Progress(ctx context.Context, id int64) (Progress, error) {
	v, err := s.coalesce(ctx, "progress:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		order, err := s.repo.GetSummary(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, orderNotFound(id)
		}
		if err != nil {
			return nil, shared.StorageFailure("load production progress", err)
		}
		return Progress{
			OrderID:           order.ID,
			Status:            order.Status,
			CompletedQuantity: order.CompletedQuantity,
			TotalQuantity:     order.TotalQuantity,
			Percent:           Percent(order.CompletedQuantity, order.TotalQuantity),
		}, nil
	})
	if err != nil {
		return Progress{}, err
	}
	return v.(Progress), nil
}

// Reconcile recomputes the cached aggregates of one order from its items.
// It reports whether the stored values had drifted.
func (s *Service) Reconcile(ctx context.Context, id int64) (bool, error) {
	healed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		completed, total := order.CompletedQuantity, order.TotalQuantity
		order.Recompute()
		if completed == order.CompletedQuantity && total == order.TotalQuantity {
			return nil
		}
		healed = true
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return err
		}
		msg := fmt.Sprintf("Aggregates recomputed: completed %d → %d, total %d → %d.",
			completed, order.CompletedQuantity, total, order.TotalQuantity)
		return tx.AppendEvents(ctx, order.ID, []AuditEntry{{At: s.clock.Now(), Kind: EventNote, Message: msg}})
	})
	if err != nil {
		return false, fmt.Errorf("reconcile production order %d: %w", id, err)
	}
	return healed, nil
}

// ListInconsistent returns ids of orders with drifted aggregates.
func (s *Service) ListInconsistent(ctx context.Context) ([]int64, error) {
	return s.repo.ListInconsistent(ctx)
}

func (s *Service) snapshot(ctx context.Context, itemType catalog.ItemType, itemID int64) (string, string, error) {
	if s.catalog == nil {
		return "", "", nil
	}
	entry, err := s.catalog.Lookup(ctx, itemType, itemID)
	if errors.Is(err, catalog.ErrUnknownItem) {
		s.logger.Warn("catalog item missing, leaving snapshot blank",
			slog.String("item_type", string(itemType)), slog.Int64("item_id", itemID))
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return entry.Name, entry.Code, nil
}

func (s *Service) obtainLock(ctx context.Context, quotationID int64) func() {
	if s.locker == nil {
		return func() {}
	}
	key := shared.ProductionLockKey(quotationID)
	held, err := s.locker.Obtain(ctx, key)
	if err != nil {
		s.logger.Warn("production lock unavailable, relying on database constraint",
			slog.String("key", key), slog.Any("error", err))
		return func() {}
	}
	return func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release production lock", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (s *Service) logFailure(op string, attr slog.Attr, err error) {
	if shared.KindOf(err) != nil {
		s.logger.Info(op+" rejected", attr, slog.String("reason", shared.UserSafeMessage(err)))
		return
	}
	s.logger.Error(op+" failed", attr, slog.Any("error", err))
}

func alreadyExists(reference string) error {
	return shared.Fail(shared.ErrAlreadyExists, "Quotation %s already has a production order.", reference)
}

func orderNotFound(id int64) error {
	return shared.Fail(shared.ErrNotFound, "Production order %d does not exist.", id)
}

func describeStatusChange(id int64, r StatusResult, note string) string {
	var b strings.Builder
	if r.Previous == r.Status {
		fmt.Fprintf(&b, "Production order #%d is already %s.", id, notifications.Humanize(string(r.Status)))
		if note != "" {
			b.WriteString(" Note added.")
		}
		return b.String()
	}
	fmt.Fprintf(&b, "Production order #%d changed from %s to %s.", id,
		notifications.Humanize(string(r.Previous)), notifications.Humanize(string(r.Status)))
	if r.ItemsCompleted > 0 {
		fmt.Fprintf(&b, " %d item(s) marked fully completed.", r.ItemsCompleted)
	}
	return b.String()
}
