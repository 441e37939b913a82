package service

import (
	"strconv"
	"sync"

	"checkout-service/internal/models"
	"checkout-service/internal/util"
)

// CartLedger holds one shopper's selected lines. It is the only state
// shared across views and is mutated solely by explicit calls; the
// server cart replaces it wholesale at the Reconcile entry point.
// Totals computed here are display-only; charging always uses the
// server metadata.
type CartLedger struct {
	mu    sync.Mutex
	lines []models.CartLine
	meta  models.CartMetadata
}

// NewCartLedger creates an empty ledger. An empty ledger is a valid,
// distinct state, not an error.
func NewCartLedger() *CartLedger {
	return &CartLedger{}
}

// Add inserts a line or increments an existing one by product id.
// A requested quantity below 1 is clamped to 1; the returned line
// reflects what was actually stored so callers can surface the clamp.
func (l *CartLedger) Add(line models.CartLine) models.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()

	if line.Quantity < 1 {
		line.Quantity = 1
	}

	for i := range l.lines {
		if l.lines[i].ProductID == line.ProductID {
			l.lines[i].Quantity += line.Quantity
			util.CartMutations.WithLabelValues("add").Inc()
			return l.lines[i]
		}
	}

	l.lines = append(l.lines, line)
	util.CartMutations.WithLabelValues("add").Inc()
	return line
}

// UpdateQuantity sets a line's quantity; anything below 1 removes the
// line. Returns whether the line was removed and whether it was found.
func (l *CartLedger) UpdateQuantity(productID int64, quantity int) (removed, found bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].ProductID != productID {
			continue
		}
		if quantity < 1 {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			util.CartMutations.WithLabelValues("remove").Inc()
			return true, true
		}
		l.lines[i].Quantity = quantity
		util.CartMutations.WithLabelValues("update").Inc()
		return false, true
	}
	return false, false
}

// Remove deletes a line by identity: the server-assigned line id once
// synced, falling back to the product id for pre-sync lines
func (l *CartLedger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.lines {
		if l.lines[i].LineID == id && id != "" {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			util.CartMutations.WithLabelValues("remove").Inc()
			return true
		}
	}

	if productID, err := strconv.ParseInt(id, 10, 64); err == nil {
		for i := range l.lines {
			if l.lines[i].LineID == "" && l.lines[i].ProductID == productID {
				l.lines = append(l.lines[:i], l.lines[i+1:]...)
				util.CartMutations.WithLabelValues("remove").Inc()
				return true
			}
		}
	}
	return false
}

// TotalPrice is the client-computed Σ(unitPrice × quantity), used for
// display responsiveness only
func (l *CartLedger) TotalPrice() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return totalOf(l.lines)
}

func totalOf(lines []models.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total
}

// Lines returns a copy of the current lines
func (l *CartLedger) Lines() []models.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// Metadata returns the last reconciled server pricing figures
func (l *CartLedger) Metadata() models.CartMetadata {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta
}

// IsEmpty reports whether the ledger holds no lines
func (l *CartLedger) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines) == 0
}

// Reconcile replaces the ledger wholesale with the server cart. Any
// purely local pre-sync state is discarded; the server is the source
// of truth at checkout entry.
func (l *CartLedger) Reconcile(server *models.ServerCart) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = make([]models.CartLine, len(server.Lines))
	copy(l.lines, server.Lines)
	l.meta = models.CartMetadata{
		ShippingCost: server.ShippingCost,
		TaxAmount:    server.TaxAmount,
		TotalAmount:  server.TotalAmount,
		Loaded:       true,
	}
	util.CartMutations.WithLabelValues("reconcile").Inc()
}

// LedgerStore hands out one ledger per shopper key
type LedgerStore struct {
	mu      sync.Mutex
	ledgers map[string]*CartLedger
}

// NewLedgerStore creates an empty ledger registry
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ledgers: make(map[string]*CartLedger)}
}

// ForShopper returns the shopper's ledger, creating it on first use
func (s *LedgerStore) ForShopper(key string) *CartLedger {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, ok := s.ledgers[key]
	if !ok {
		ledger = NewCartLedger()
		s.ledgers[key] = ledger
	}
	return ledger
}
