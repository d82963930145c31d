package userbus

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/types/name"
	"github.com/schoolplane/platform/business/types/password"
	"github.com/schoolplane/platform/business/types/role"
)

// User represents a platform operator account. These are control plane
// accounts, not tenant-side staff.
type User struct {
	ID           uuid.UUID
	Name         name.Name
	Email        mail.Address
	Role         role.Role
	PasswordHash []byte
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser contains information needed to create a new user.
type NewUser struct {
	Name     name.Name
	Email    mail.Address
	Role     role.Role
	Password password.Password
}

// UpdateUser contains information needed to update a user.
type UpdateUser struct {
	Name     *name.Name
	Email    *mail.Address
	Role     *role.Role
	Password *password.Password
	Enabled  *bool
}
