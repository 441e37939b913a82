package upstream

import (
	"context"
	"fmt"
	"net/http"

	"checkout-service/internal/models"
)

// CartAPI talks to the server-side cart, which is authoritative for
// pricing. Line mutations return the updated cart so callers can
// reconcile.
type CartAPI struct {
	client *Client
}

// NewCartAPI creates a cart API client
func NewCartAPI(client *Client) *CartAPI {
	return &CartAPI{client: client}
}

// GetCart fetches the shopper's server-side cart
func (a *CartAPI) GetCart(ctx context.Context, bearer string) (*models.ServerCart, error) {
	var cart models.ServerCart
	if err := a.client.do(ctx, http.MethodGet, "/cart", bearer, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// AddItem adds or increments a product line on the server cart
func (a *CartAPI) AddItem(ctx context.Context, bearer string, productID int64, quantity int) (*models.ServerCart, error) {
	var cart models.ServerCart
	req := addItemRequest{ProductID: productID, Quantity: quantity}
	if err := a.client.do(ctx, http.MethodPost, "/cart/items", bearer, req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem sets a line's quantity on the server cart
func (a *CartAPI) UpdateItem(ctx context.Context, bearer string, productID int64, quantity int) (*models.ServerCart, error) {
	var cart models.ServerCart
	path := fmt.Sprintf("/cart/items/%d", productID)
	if err := a.client.do(ctx, http.MethodPatch, path, bearer, updateItemRequest{Quantity: quantity}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem deletes a line from the server cart by its line id
func (a *CartAPI) RemoveItem(ctx context.Context, bearer, lineID string) (*models.ServerCart, error) {
	var cart models.ServerCart
	if err := a.client.do(ctx, http.MethodDelete, "/cart/items/"+lineID, bearer, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
