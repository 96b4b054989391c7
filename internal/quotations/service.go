package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Authorizer resolves owner-or-admin access.
type Authorizer interface {
	IsOwnerOrAdmin(ctx context.Context, actorID, ownerID int64) (bool, error)
}

// StatusResult describes a completed status change.
type StatusResult struct {
	QuotationID int64        `json:"quotation_id"`
	Previous    Status       `json:"previous_status"`
	Status      Status       `json:"status"`
	Eligibility *Eligibility `json:"eligibility,omitempty"`
	Message     string       `json:"message"`
}

// Service is the quotation status engine.
type Service struct {
	repo    Repository
	authz   Authorizer
	logger  *slog.Logger
	metrics observability.WorkflowRecorder
	reads   singleflight.Group
}

// NewService builds the status engine.
func NewService(repo Repository, authz Authorizer, logger *slog.Logger, metrics observability.WorkflowRecorder) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = observability.NopRecorder{}
	}
	return &Service{repo: repo, authz: authz, logger: logger, metrics: metrics}
}

// SetStatus overwrites the quotation status after validating the value and
// the actor's rights. Accepting a quotation also reports what may be created
// downstream; nothing is created here.
func (s *Service) SetStatus(ctx context.Context, id int64, newStatus string, actorID int64) (result StatusResult, err error) {
	defer func() { s.metrics.RecordWorkflow("set_quotation_status", observability.OutcomeOf(err)) }()

	next := Status(strings.ToLower(strings.TrimSpace(newStatus)))
	if !next.Valid() {
		return StatusResult{}, shared.Fail(shared.ErrInvalidStatus,
			"%q is not a valid quotation status. Use one of: draft, sent, accepted, rejected, expired.", newStatus)
	}

	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return StatusResult{}, s.lookupError(id, err)
	}

	allowed, err := s.authz.IsOwnerOrAdmin(ctx, actorID, quote.OwnerID)
	if err != nil {
		return StatusResult{}, shared.StorageFailure("check your permissions", err)
	}
	if !allowed {
		return StatusResult{}, shared.Fail(shared.ErrForbidden,
			"Only the owner of quotation %s or an administrator can change its status.", quote.Reference)
	}

	if !quote.Status.CanTransitionTo(next) {
		return StatusResult{}, shared.Fail(shared.ErrInvalidStatus, "Quotation %s cannot move to %s.", quote.Reference, next)
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return StatusResult{}, s.lookupError(id, err)
	}

	result = StatusResult{QuotationID: id, Previous: quote.Status, Status: next}
	result.Message = fmt.Sprintf("Quotation %s status changed from %s to %s.", quote.Reference, quote.Status, next)
	if next == StatusAccepted {
		elig, err := s.eligibility(ctx, id, next)
		if err != nil {
			return StatusResult{}, shared.StorageFailure("check downstream records", err)
		}
		result.Eligibility = &elig
		result.Message += eligibilityHint(elig)
	}

	s.logger.Info("quotation status changed",
		slog.Int64("quotation_id", id),
		slog.String("from", string(quote.Status)),
		slog.String("to", string(next)),
		slog.Int64("actor_id", actorID),
	)
	return result, nil
}

// Eligibility reports whether a production order or invoice may still be created.
func (s *Service) Eligibility(ctx context.Context, id int64) (Eligibility, error) {
	v, err, _ := s.reads.Do(strconv.FormatInt(id, 10), func() (any, error) {
		quote, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, s.lookupError(id, err)
		}
		elig, err := s.eligibility(ctx, id, quote.Status)
		if err != nil {
			return nil, shared.StorageFailure("check downstream records", err)
		}
		return elig, nil
	})
	if err != nil {
		return Eligibility{}, err
	}
	return v.(Eligibility), nil
}

func (s *Service) eligibility(ctx context.Context, id int64, status Status) (Eligibility, error) {
	hasOrder, err := s.repo.HasProductionOrder(ctx, id)
	if err != nil {
		return Eligibility{}, err
	}
	hasInvoice, err := s.repo.HasInvoice(ctx, id)
	if err != nil {
		return Eligibility{}, err
	}
	return NewEligibility(id, status, hasOrder, hasInvoice), nil
}

func (s *Service) lookupError(id int64, err error) error {
	if errors.Is(err, ErrNotFound) {
		return shared.Fail(shared.ErrNotFound, "Quotation %d does not exist.", id)
	}
	return shared.StorageFailure("update the quotation", err)
}

func eligibilityHint(e Eligibility) string {
	switch {
	case e.CanCreateProduction && e.CanCreateInvoice:
		return " A production order and an invoice can now be created."
	case e.CanCreateProduction:
		return " A production order can now be created."
	case e.CanCreateInvoice:
		return " An invoice can now be created."
	default:
		return ""
	}
}
