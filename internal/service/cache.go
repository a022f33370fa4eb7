package service

import (
	"sort"
	"sync"

	"github.com/quantfold/futbot/internal/domain"
)

// ActiveOrderCache is a local, advisory copy of orders this process placed or
// observed. The exchange's open-order list stays authoritative; the cache only
// saves round-trips for status displays and is reconciled via Replace.
type ActiveOrderCache struct {
	mu   sync.RWMutex
	byID map[int64]domain.Order
}

// NewActiveOrderCache returns an empty cache.
func NewActiveOrderCache() *ActiveOrderCache {
	return &ActiveOrderCache{byID: make(map[int64]domain.Order)}
}

// Put records or updates an order snapshot.
func (c *ActiveOrderCache) Put(o domain.Order) {
	c.mu.Lock()
	c.byID[o.OrderID] = o
	c.mu.Unlock()
}

// Remove drops an order by ID. Removing an absent ID is a no-op.
func (c *ActiveOrderCache) Remove(orderID int64) {
	c.mu.Lock()
	delete(c.byID, orderID)
	c.mu.Unlock()
}

// RemoveSymbol drops every cached order for the given symbol.
func (c *ActiveOrderCache) RemoveSymbol(symbol string) {
	c.mu.Lock()
	for id, o := range c.byID {
		if o.Symbol == symbol {
			delete(c.byID, id)
		}
	}
	c.mu.Unlock()
}

// Get returns the cached snapshot for an order ID.
func (c *ActiveOrderCache) Get(orderID int64) (domain.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.byID[orderID]
	return o, ok
}

// List returns cached orders for a symbol sorted by order ID; an empty symbol
// returns everything.
func (c *ActiveOrderCache) List(symbol string) []domain.Order {
	c.mu.RLock()
	orders := make([]domain.Order, 0, len(c.byID))
	for _, o := range c.byID {
		if symbol == "" || o.Symbol == symbol {
			orders = append(orders, o)
		}
	}
	c.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderID < orders[j].OrderID })
	return orders
}

// Replace swaps the cache contents for the given snapshot wholesale.
func (c *ActiveOrderCache) Replace(orders []domain.Order) {
	next := make(map[int64]domain.Order, len(orders))
	for _, o := range orders {
		next[o.OrderID] = o
	}
	c.mu.Lock()
	c.byID = next
	c.mu.Unlock()
}

// Len returns the number of cached orders.
func (c *ActiveOrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
