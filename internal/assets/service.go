// internal/assets/service.go
package assets

import "context"

// Service is the asset directory consumed by the loan lifecycle engine and
// the event consumers.
type Service interface {
	CreateAsset(ctx context.Context, tag, name, description string, categoryID *int64) (*Asset, error)
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	GetAssetByTag(ctx context.Context, tag string) (*Asset, error)
	ListAssets(ctx context.Context, status Status) ([]*Asset, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}
