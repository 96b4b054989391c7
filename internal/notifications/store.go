package notifications

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

const maxUnread = 200

// Append inserts notifications through q, which may be an open transaction.
// The returned slice carries the generated ids and timestamps.
func Append(ctx context.Context, q db.Querier, entries []Notification) ([]Notification, error) {
	out := make([]Notification, 0, len(entries))
	for _, n := range entries {
		err := q.QueryRow(ctx, `INSERT INTO notifications (user_id, related_id, related_type, message, is_read)
VALUES ($1, $2, $3, $4, FALSE)
RETURNING id, created_at`, n.UserID, n.RelatedID, string(n.RelatedType), n.Message).Scan(&n.ID, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("notifications: append for user %d: %w", n.UserID, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Store serves the inbox read side.
type Store struct {
	q db.Querier
}

// NewStore constructs a Store.
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// ListUnread returns the newest unread notifications for a user.
func (s *Store) ListUnread(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > maxUnread {
		limit = maxUnread
	}
	rows, err := s.q.Query(ctx, `SELECT id, user_id, related_id, related_type, message, is_read, created_at
FROM notifications
WHERE user_id = $1 AND NOT is_read
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list unread: %w", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		var related string
		if err := rows.Scan(&n.ID, &n.UserID, &n.RelatedID, &related, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.RelatedType = RelatedType(related)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Get loads a single notification.
func (s *Store) Get(ctx context.Context, id int64) (Notification, error) {
	var n Notification
	var related string
	err := s.q.QueryRow(ctx, `SELECT id, user_id, related_id, related_type, message, is_read, created_at
FROM notifications WHERE id = $1`, id).Scan(&n.ID, &n.UserID, &n.RelatedID, &related, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("notifications: get %d: %w", id, err)
	}
	n.RelatedType = RelatedType(related)
	return n, nil
}

// MarkRead flags the given notifications of userID as read.
func (s *Store) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `UPDATE notifications SET is_read = TRUE
WHERE user_id = $1 AND id = ANY($2) AND NOT is_read`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("notifications: mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}
