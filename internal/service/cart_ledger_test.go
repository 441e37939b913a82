package service

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func line(productID int64, price int64, qty int) models.CartLine {
	return models.CartLine{ProductID: productID, UnitPrice: price, Quantity: qty}
}

func TestAddIncrementsExistingLine(t *testing.T) {
	ledger := NewCartLedger()

	ledger.Add(line(1, 1000, 2))
	stored := ledger.Add(line(1, 1000, 3))

	assert.Equal(t, 5, stored.Quantity)
	assert.Len(t, ledger.Lines(), 1)
}

func TestAddClampsQuantityToOne(t *testing.T) {
	ledger := NewCartLedger()

	stored := ledger.Add(line(1, 1000, 0))

	assert.Equal(t, 1, stored.Quantity)
	assert.Equal(t, int64(1000), ledger.TotalPrice())
}

func TestTotalPriceIsSumOfSurvivingLines(t *testing.T) {
	ledger := NewCartLedger()

	ledger.Add(line(1, 1000, 2))
	ledger.Add(line(2, 500, 1))
	ledger.Add(line(3, 250, 4))

	assert.Equal(t, int64(2*1000+500+4*250), ledger.TotalPrice())

	ledger.UpdateQuantity(3, 1)
	assert.Equal(t, int64(2*1000+500+250), ledger.TotalPrice())

	removed, found := ledger.UpdateQuantity(2, 0)
	assert.True(t, removed)
	assert.True(t, found)
	assert.Equal(t, int64(2*1000+250), ledger.TotalPrice())
}

func TestUpdateQuantityFloor(t *testing.T) {
	tests := []struct {
		name        string
		quantity    int
		wantRemoved bool
		wantQty     int
	}{
		{"zero removes", 0, true, 0},
		{"negative removes", -3, true, 0},
		{"one sets exactly", 1, false, 1},
		{"seven sets exactly", 7, false, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := NewCartLedger()
			ledger.Add(line(42, 2500, 2))

			removed, found := ledger.UpdateQuantity(42, tt.quantity)
			assert.True(t, found)
			assert.Equal(t, tt.wantRemoved, removed)

			if tt.wantRemoved {
				assert.True(t, ledger.IsEmpty())
			} else {
				assert.Equal(t, tt.wantQty, ledger.Lines()[0].Quantity)
			}
		})
	}
}

func TestUpdateQuantityUnknownProduct(t *testing.T) {
	ledger := NewCartLedger()
	ledger.Add(line(1, 1000, 1))

	_, found := ledger.UpdateQuantity(99, 2)
	assert.False(t, found)
}

func TestRemovePrefersLineID(t *testing.T) {
	ledger := NewCartLedger()
	ledger.Add(models.CartLine{LineID: "srv-7", ProductID: 1, UnitPrice: 1000, Quantity: 1})
	ledger.Add(line(2, 500, 1))

	assert.True(t, ledger.Remove("srv-7"))
	// Pre-sync line falls back to product id.
	assert.True(t, ledger.Remove("2"))
	assert.True(t, ledger.IsEmpty())

	assert.False(t, ledger.Remove("nope"))
}

func TestReconcileReplacesWholesale(t *testing.T) {
	ledger := NewCartLedger()
	ledger.Add(line(1, 1000, 5))
	ledger.Add(line(2, 500, 1))

	server := &models.ServerCart{
		Lines: []models.CartLine{
			{LineID: "a", ProductID: 3, UnitPrice: 300, Quantity: 2},
		},
		ShippingCost: 500,
		TaxAmount:    250,
		TotalAmount:  1350,
	}
	ledger.Reconcile(server)

	lines := ledger.Lines()
	assert.Len(t, lines, 1)
	assert.Equal(t, int64(3), lines[0].ProductID)
	assert.Equal(t, int64(600), ledger.TotalPrice())

	meta := ledger.Metadata()
	assert.True(t, meta.Loaded)
	assert.Equal(t, int64(500), meta.ShippingCost)
	assert.Equal(t, int64(250), meta.TaxAmount)
	assert.Equal(t, int64(1350), meta.TotalAmount)
}

func TestReconcileToEmptyIsValid(t *testing.T) {
	ledger := NewCartLedger()
	ledger.Add(line(1, 1000, 1))

	ledger.Reconcile(&models.ServerCart{})

	assert.True(t, ledger.IsEmpty())
	assert.Equal(t, int64(0), ledger.TotalPrice())
}

func TestLedgerStoreHandsOutOneLedgerPerShopper(t *testing.T) {
	store := NewLedgerStore()

	a := store.ForShopper("alice")
	b := store.ForShopper("bob")
	assert.NotSame(t, a, b)

	a.Add(line(1, 1000, 1))
	assert.True(t, b.IsEmpty())
	assert.Same(t, a, store.ForShopper("alice"))
}
