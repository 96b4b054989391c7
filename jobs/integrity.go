package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/observability"
)

// Reconciler finds and heals records whose cached aggregates drifted.
type Reconciler interface {
	ListInconsistent(ctx context.Context) ([]int64, error)
	Reconcile(ctx context.Context, id int64) (bool, error)
}

// JobRecorder counts job outcomes.
type JobRecorder interface {
	RecordJob(task, outcome string)
}

// IntegrityReport summarises one scan.
type IntegrityReport struct {
	Scope    string
	Found    []int64
	Healed   []int64
	Failures int
}

// IntegrityJob scans production orders and invoices for aggregate drift.
type IntegrityJob struct {
	Production Reconciler
	Invoices   Reconciler
	Logger     *slog.Logger
	Metrics    JobRecorder
	Timing     *jobmetrics.Metrics
}

// Handle executes the integrity scan for asynq.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.Timing.Track(TaskFulfillmentIntegrity)
	defer func() {
		err = tracker.End(err)
		if j.Metrics != nil {
			j.Metrics.RecordJob(TaskFulfillmentIntegrity, jobOutcome(err))
		}
	}()
	var payload IntegrityPayload
	if err := unmarshalPayload(t, &payload); err != nil {
		return err
	}
	reports, err := j.Run(ctx, payload)
	if err != nil {
		return err
	}
	var failed error
	for _, r := range reports {
		j.Timing.AddDrift(r.Scope, len(r.Found), len(r.Healed))
		if r.Failures > 0 && failed == nil {
			failed = fmt.Errorf("integrity %s: %d record(s) could not be reconciled", r.Scope, r.Failures)
		}
	}
	return failed
}

// Run scans the requested scopes concurrently.
func (j *IntegrityJob) Run(ctx context.Context, payload IntegrityPayload) ([]IntegrityReport, error) {
	type target struct {
		scope string
		rec   Reconciler
	}
	var targets []target
	if j.Production != nil && payload.includes(ScopeProduction) {
		targets = append(targets, target{ScopeProduction, j.Production})
	}
	if j.Invoices != nil && payload.includes(ScopeInvoices) {
		targets = append(targets, target{ScopeInvoices, j.Invoices})
	}

	reports := make([]IntegrityReport, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, tg := range targets {
		g.Go(func() error {
			report, err := j.scan(gctx, tg.scope, tg.rec, payload.DryRun)
			reports[i] = report
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (j *IntegrityJob) scan(ctx context.Context, scope string, rec Reconciler, dryRun bool) (IntegrityReport, error) {
	logger := j.logger().With(slog.String("scope", scope))
	report := IntegrityReport{Scope: scope}
	ids, err := rec.ListInconsistent(ctx)
	if err != nil {
		return report, fmt.Errorf("list inconsistent %s: %w", scope, err)
	}
	report.Found = ids
	if len(ids) == 0 {
		logger.Info("integrity scan clean")
		return report, nil
	}
	logger.Warn("aggregate drift detected", slog.Int("count", len(ids)), slog.Any("ids", ids))
	if dryRun {
		return report, nil
	}
	for _, id := range ids {
		healed, err := rec.Reconcile(ctx, id)
		if err != nil {
			report.Failures++
			logger.Error("reconcile failed", slog.Int64("id", id), slog.Any("error", err))
			continue
		}
		if healed {
			report.Healed = append(report.Healed, id)
		}
	}
	logger.Info("integrity scan finished", slog.Int("healed", len(report.Healed)), slog.Int("failures", report.Failures))
	return report, nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Logger
}

func unmarshalPayload(t *asynq.Task, target any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type(), asynq.SkipRetry)
	}
	return nil
}

func jobOutcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}
