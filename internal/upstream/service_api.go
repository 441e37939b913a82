package upstream

import (
	"context"
	"fmt"
	"net/http"

	"checkout-service/internal/models"
)

// ServiceAPI fetches bookable service detail, including the published
// availability map
type ServiceAPI struct {
	client *Client
}

// NewServiceAPI creates a service detail API client
func NewServiceAPI(client *Client) *ServiceAPI {
	return &ServiceAPI{client: client}
}

// GetService fetches a service's booking-relevant detail
func (a *ServiceAPI) GetService(ctx context.Context, bearer string, serviceID int64) (*models.ServiceDetail, error) {
	var detail models.ServiceDetail
	path := fmt.Sprintf("/services/%d", serviceID)
	if err := a.client.do(ctx, http.MethodGet, path, bearer, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
