// internal/clients/asset_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"assetflow/internal/assets"
)

// AssetClient reads the asset directory over HTTP. The consumer processes use
// it to enrich events with asset tags and names without opening their own
// database pool.
type AssetClient struct {
	baseURL string
}

func NewAssetClient(baseURL string) *AssetClient {
	return &AssetClient{baseURL: baseURL}
}

func (c *AssetClient) GetAsset(ctx context.Context, id int64) (*assets.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/assets/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var asset assets.Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, err
	}
	return &asset, nil
}
