// internal/users/service.go
package users

import (
	"context"

	"assetflow/internal/loans"
)

// Service defines the interface for the user directory. It also serves as the
// loan engine's capability checker: whether a caller may borrow or approve is
// derived from the role column, not carried around by HTTP clients.
type Service interface {
	RegisterUser(ctx context.Context, username, email, fullName, password, role string) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListManagers(ctx context.Context) ([]*User, error)
	HasCapability(ctx context.Context, userID int64, capability loans.Capability) (bool, error)
}
