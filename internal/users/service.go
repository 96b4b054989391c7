package users

import (
	"context"
	"errors"
)

// ErrUserNotFound indicates an unknown user id.
var ErrUserNotFound = errors.New("users: user not found")

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListIDsByRole(ctx context.Context, role string) ([]int64, error)
	Get(ctx context.Context, id int64) (User, error)
}

// Directory answers role and authorization questions for the workflow.
type Directory struct {
	repo      RepositoryPort
	adminRole string
}

// NewDirectory builds a Directory. adminRole names the role with full access.
func NewDirectory(repo RepositoryPort, adminRole string) *Directory {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Directory{repo: repo, adminRole: adminRole}
}

// ListIDsByRole returns ids of active users holding role.
func (d *Directory) ListIDsByRole(ctx context.Context, role string) ([]int64, error) {
	return d.repo.ListIDsByRole(ctx, role)
}

// IsOwnerOrAdmin reports whether actorID may act on a record owned by ownerID.
func (d *Directory) IsOwnerOrAdmin(ctx context.Context, actorID, ownerID int64) (bool, error) {
	if actorID <= 0 {
		return false, nil
	}
	if actorID == ownerID {
		return true, nil
	}
	user, err := d.repo.Get(ctx, actorID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsActive && user.HasRole(d.adminRole), nil
}
