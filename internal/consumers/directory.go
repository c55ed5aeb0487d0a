// internal/consumers/directory.go
package consumers

import (
	"context"

	"assetflow/internal/assets"
	"assetflow/internal/users"
)

// AssetDirectory resolves asset details for event enrichment. In-process
// consumers use the assets service directly; out-of-process consumers use the
// HTTP client.
type AssetDirectory interface {
	GetAsset(ctx context.Context, id int64) (*assets.Asset, error)
}

// UserDirectory resolves recipients.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*users.User, error)
	ListManagers(ctx context.Context) ([]*users.User, error)
}
