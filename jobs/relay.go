package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/notifications"
	"github.com/odyssey-erp/fulfillment/internal/users"
)

// Enqueuer is the subset of asynq.Client used for relaying.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Relayer enqueues one mail task per committed notification. It implements
// notifications.Relayer and never reports failure to the workflow.
type Relayer struct {
	client Enqueuer
	logger *slog.Logger
}

// NewRelayer wires the relayer to an asynq client.
func NewRelayer(client Enqueuer, logger *slog.Logger) *Relayer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relayer{client: client, logger: logger}
}

// Relay enqueues entries. Duplicate task ids are treated as already relayed.
func (r *Relayer) Relay(ctx context.Context, entries []notifications.Notification) {
	for _, n := range entries {
		task, id, err := NewNotificationRelayTask(NotificationRelayPayload{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Message:        n.Message,
		})
		if err != nil {
			r.logger.Warn("build relay task", slog.Int64("notification_id", n.ID), slog.Any("error", err))
			continue
		}
		_, err = r.client.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.Queue(QueueNotifications), asynq.MaxRetry(5))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			r.logger.Warn("enqueue notification relay",
				slog.Int64("notification_id", n.ID),
				slog.Int64("user_id", n.UserID),
				slog.Any("error", err),
			)
		}
	}
}

// Recipients resolves a user id to a deliverable address.
type Recipients interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log. It stands in for SMTP delivery.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message.
func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	if m.Logger != nil {
		m.Logger.Info("mail sent", slog.String("to", to), slog.String("subject", subject), slog.Int("body_len", len(body)))
	}
	return nil
}

// NotificationRelayJob delivers relayed notifications.
type NotificationRelayJob struct {
	Recipients Recipients
	Mailer     Mailer
	Logger     *slog.Logger
	Metrics    JobRecorder
}

// Handle processes TaskNotificationRelay tasks.
func (j *NotificationRelayJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { j.record(TaskNotificationRelay, err) }()

	var payload NotificationRelayPayload
	if err := unmarshalPayload(t, &payload); err != nil {
		return err
	}
	user, err := j.Recipients.Get(ctx, payload.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		j.logger().Warn("relay recipient missing", slog.Int64("user_id", payload.UserID))
		return fmt.Errorf("recipient %d: %w", payload.UserID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", payload.UserID, err)
	}
	if !user.IsActive || user.Email == "" {
		j.logger().Info("relay skipped", slog.Int64("user_id", user.ID), slog.Bool("active", user.IsActive))
		return nil
	}
	return j.Mailer.Send(ctx, user.Email, "Odyssey fulfillment update", payload.Message)
}

func (j *NotificationRelayJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Logger
}

func (j *NotificationRelayJob) record(task string, err error) {
	if j.Metrics != nil {
		j.Metrics.RecordJob(task, jobOutcome(err))
	}
}
