// Package notifications is the per-user message sink fed by the fulfillment workflow.
package notifications

import "time"

// RelatedType tags the entity a notification refers to.
type RelatedType string

const (
	RelatedQuotation       RelatedType = "quotation"
	RelatedProductionOrder RelatedType = "production_order"
	RelatedInvoice         RelatedType = "invoice"
)

// Notification is one message addressed to one user.
type Notification struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	RelatedID   int64       `json:"related_id"`
	RelatedType RelatedType `json:"related_type"`
	Message     string      `json:"message"`
	Read        bool        `json:"read"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FanOut builds one notification per recipient carrying the same message.
func FanOut(recipients []int64, relatedID int64, relatedType RelatedType, message string) []Notification {
	out := make([]Notification, 0, len(recipients))
	seen := make(map[int64]struct{}, len(recipients))
	for _, userID := range recipients {
		if userID <= 0 {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, Notification{
			UserID:      userID,
			RelatedID:   relatedID,
			RelatedType: relatedType,
			Message:     message,
		})
	}
	return out
}
