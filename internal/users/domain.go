package users

// User is a directory entry with its role names.
type User struct {
	ID       int64
	Email    string
	Name     string
	IsActive bool
	Roles    []string
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
