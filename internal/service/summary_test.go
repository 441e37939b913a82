package service

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectSummaryEndToEnd(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: 42, UnitPrice: 2500, Quantity: 2},
	}
	meta := models.CartMetadata{
		ShippingCost: 500,
		TaxAmount:    250,
		TotalAmount:  5750,
		Loaded:       true,
	}

	summary := ProjectSummary(lines, meta)

	assert.Equal(t, int64(5000), summary.Subtotal)
	require.NotNil(t, summary.Shipping)
	require.NotNil(t, summary.Tax)
	require.NotNil(t, summary.Total)
	assert.Equal(t, int64(500), *summary.Shipping)
	assert.Equal(t, int64(250), *summary.Tax)
	assert.Equal(t, int64(5750), *summary.Total)

	assert.Equal(t, "5.00", summary.ShippingLabel())
	assert.Equal(t, "2.50", summary.TaxLabel())
	assert.Equal(t, "57.50", summary.TotalLabel())
}

func TestProjectSummaryBeforeMetadataLoads(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: 1, UnitPrice: 1000, Quantity: 3},
	}

	summary := ProjectSummary(lines, models.CartMetadata{})

	assert.Equal(t, int64(3000), summary.Subtotal)
	assert.Nil(t, summary.Shipping)
	assert.Nil(t, summary.Tax)
	assert.Nil(t, summary.Total)
	assert.Equal(t, "Free", summary.ShippingLabel())
	assert.Equal(t, "", summary.TaxLabel())
	assert.Equal(t, "", summary.TotalLabel())
}

func TestProjectSummaryRecomputesOnMutation(t *testing.T) {
	ledger := NewCartLedger()
	ledger.Add(models.CartLine{ProductID: 1, UnitPrice: 1000, Quantity: 2})
	ledger.Reconcile(&models.ServerCart{
		Lines:        ledger.Lines(),
		ShippingCost: 500,
		TaxAmount:    100,
		TotalAmount:  2600,
	})

	// Quantity changes before the next metadata fetch: the subtotal
	// moves immediately, the server figures stay provisionally stale.
	ledger.UpdateQuantity(1, 5)
	summary := ProjectSummary(ledger.Lines(), ledger.Metadata())

	assert.Equal(t, int64(5000), summary.Subtotal)
	require.NotNil(t, summary.Total)
	assert.Equal(t, int64(2600), *summary.Total)
}

func TestProjectBookingSummary(t *testing.T) {
	summary := ProjectBookingSummary(4500, models.CartMetadata{})

	assert.Equal(t, int64(4500), summary.Subtotal)
	assert.Nil(t, summary.Total)
}
