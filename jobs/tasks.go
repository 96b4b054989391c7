package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault carries maintenance jobs such as integrity scans.
	QueueDefault = "default"
	// QueueNotifications carries outbound notification deliveries.
	QueueNotifications = "notifications"
	// TaskNotificationRelay delivers a committed notification by mail.
	TaskNotificationRelay = "notification:relay"
	// TaskFulfillmentIntegrity recomputes cached order and invoice aggregates.
	TaskFulfillmentIntegrity = "fulfillment:integrity"
)

// relayNamespace scopes deterministic task ids for notification relays.
var relayNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("odyssey-erp/notification-relay"))

// NotificationRelayPayload identifies the notification row to deliver.
type NotificationRelayPayload struct {
	NotificationID int64  `json:"notification_id"`
	UserID         int64  `json:"user_id"`
	Message        string `json:"message"`
}

// NewNotificationRelayTask constructs a relay task and its deduplicating task id.
func NewNotificationRelayTask(payload NotificationRelayPayload) (*asynq.Task, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	id := uuid.NewSHA1(relayNamespace, []byte(fmt.Sprintf("notification:%d", payload.NotificationID)))
	return asynq.NewTask(TaskNotificationRelay, data), id.String(), nil
}

// IntegrityPayload limits the scan scope. Empty scopes scan everything.
type IntegrityPayload struct {
	Scopes []string `json:"scopes,omitempty"`
	DryRun bool     `json:"dry_run,omitempty"`
}

const (
	ScopeProduction = "production"
	ScopeInvoices   = "invoices"
)

// NewIntegrityTask constructs an integrity scan task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFulfillmentIntegrity, data), nil
}

func (p IntegrityPayload) includes(scope string) bool {
	if len(p.Scopes) == 0 {
		return true
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
