// internal/assets/implementation.go
package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound marks a lookup for an unknown asset id or tag.
var ErrNotFound = errors.New("asset not found")

// ErrDuplicateTag marks a create with an already-used asset tag.
var ErrDuplicateTag = errors.New("asset tag already in use")

// service implements the Service interface.
type service struct {
	db *sql.DB
}

// NewService creates a new asset directory instance.
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

func (s *service) CreateAsset(ctx context.Context, tag, name, description string, categoryID *int64) (*Asset, error) {
	if tag == "" || name == "" {
		return nil, fmt.Errorf("asset tag and name are required")
	}

	asset := &Asset{
		AssetTag:    tag,
		Name:        name,
		Description: description,
		CategoryID:  categoryID,
		Status:      StatusAvailable,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO assets (asset_tag, name, description, category_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, tag, name, description, categoryID, asset.Status).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateTag
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return asset, nil
}

func (s *service) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	return s.get(ctx, selectAsset+` WHERE id = $1`, id)
}

func (s *service) GetAssetByTag(ctx context.Context, tag string) (*Asset, error) {
	return s.get(ctx, selectAsset+` WHERE asset_tag = $1`, tag)
}

func (s *service) ListAssets(ctx context.Context, status Status) ([]*Asset, error) {
	query := selectAsset + ` ORDER BY asset_tag`
	args := []interface{}{}
	if status != "" {
		query = selectAsset + ` WHERE status = $1 ORDER BY asset_tag`
		args = append(args, status)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var result []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		result = append(result, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return result, nil
}

// SetStatus is used by asset management for maintenance/retired; loan
// transitions update the status inside the engine's own transaction.
func (s *service) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assets SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update asset status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectAsset = `
	SELECT id, asset_tag, name, description, category_id, status, purchase_date, notes, created_at, updated_at
	FROM assets`

func (s *service) get(ctx context.Context, query string, args ...interface{}) (*Asset, error) {
	asset, err := scanAsset(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	asset := &Asset{}
	var description, notes sql.NullString
	var categoryID sql.NullInt64
	var purchaseDate sql.NullTime
	err := row.Scan(
		&asset.ID, &asset.AssetTag, &asset.Name, &description, &categoryID,
		&asset.Status, &purchaseDate, &notes, &asset.CreatedAt, &asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	asset.Description = description.String
	asset.Notes = notes.String
	if categoryID.Valid {
		asset.CategoryID = &categoryID.Int64
	}
	if purchaseDate.Valid {
		asset.PurchaseDate = &purchaseDate.Time
	}
	return asset, nil
}
