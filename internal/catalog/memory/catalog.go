// Package memory provides a fixture catalog for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/naman3006/E-commerce-sub001/internal/catalog"
)

// Gateway is an in-process catalog.Gateway.
type Gateway struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

// NewGateway returns a gateway seeded with the given products.
func NewGateway(products ...catalog.Product) *Gateway {
	g := &Gateway{products: make(map[string]catalog.Product, len(products))}
	for _, p := range products {
		g.products[p.ID] = p
	}
	return g
}

// GetProduct returns a copy of the product, or catalog.ErrNotFound.
func (g *Gateway) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	p, ok := g.products[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

// Set adds or replaces a product.
func (g *Gateway) Set(p catalog.Product) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.products[p.ID] = p
}

// Remove deletes a product so later lookups report it missing.
func (g *Gateway) Remove(productID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.products, productID)
}

// LoadFile reads a JSON array of products, the format the catalog service
// exports, for seeding a local gateway.
func LoadFile(path string) ([]catalog.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog seed %s: %w", path, err)
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog seed %s: product %d has no id", path, i)
		}
	}
	return products, nil
}
