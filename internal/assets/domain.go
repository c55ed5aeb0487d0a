// internal/assets/domain.go
package assets

import "time"

// Status is the asset availability state.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusLoaned      Status = "loaned"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// Asset is a loanable physical item. Status is mutated only by the loan
// lifecycle engine (available <-> loaned) and by asset management
// (maintenance, retired).
type Asset struct {
	ID           int64      `json:"id"`
	AssetTag     string     `json:"asset_tag"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	CategoryID   *int64     `json:"category_id,omitempty"`
	Status       Status     `json:"status"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
