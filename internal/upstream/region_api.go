package upstream

import (
	"context"
	"net/http"

	"checkout-service/internal/models"
)

// RegionAPI serves the shipping-region reference list, consumed only
// for address form population
type RegionAPI struct {
	client *Client
}

// NewRegionAPI creates a region API client
func NewRegionAPI(client *Client) *RegionAPI {
	return &RegionAPI{client: client}
}

// ListRegions fetches the ordered region list
func (a *RegionAPI) ListRegions(ctx context.Context, bearer string) ([]models.Region, error) {
	var regions []models.Region
	if err := a.client.do(ctx, http.MethodGet, "/regions", bearer, nil, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}
