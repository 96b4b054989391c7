package users

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// Repository provides PostgreSQL backed user lookups.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// ListIDsByRole returns active users holding the named role.
func (r *Repository) ListIDsByRole(ctx context.Context, role string) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT u.id
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
JOIN roles ro ON ro.id = ur.role_id
WHERE ro.name = $1 AND u.is_active
ORDER BY u.id`, role)
	if err != nil {
		return nil, fmt.Errorf("users: list by role: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get loads a user and its role names.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.q.QueryRow(ctx, `SELECT u.id, u.email, u.name, u.is_active,
	COALESCE(array_agg(ro.name ORDER BY ro.name) FILTER (WHERE ro.name IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles ro ON ro.id = ur.role_id
WHERE u.id = $1
GROUP BY u.id`, id).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.Roles)
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("users: get %d: %w", id, err)
	}
	return user, nil
}
