package service

import "checkout-service/internal/models"

// ProjectSummary computes the displayed subtotal/shipping/tax/total
// breakdown. Subtotal is always the client-computed line sum so the
// display reacts to every ledger mutation; shipping, tax and total come
// from the server metadata once loaded and are left unset before that,
// never silently zeroed after load. A recompute between mutations and
// the next metadata fetch is allowed to be provisionally stale.
func ProjectSummary(lines []models.CartLine, meta models.CartMetadata) models.OrderSummary {
	summary := models.OrderSummary{Subtotal: totalOf(lines)}
	if !meta.Loaded {
		return summary
	}

	shipping := meta.ShippingCost
	tax := meta.TaxAmount
	total := meta.TotalAmount
	summary.Shipping = &shipping
	summary.Tax = &tax
	summary.Total = &total
	return summary
}

// ProjectBookingSummary is the single-service variant: the service
// price plays the subtotal role
func ProjectBookingSummary(servicePrice int64, meta models.CartMetadata) models.OrderSummary {
	line := models.CartLine{UnitPrice: servicePrice, Quantity: 1}
	return ProjectSummary([]models.CartLine{line}, meta)
}
