// Package catalog defines the read-only view of the product catalog that the
// cart depends on. The catalog is owned by another service; adapters in the
// sub-packages reach it over HTTP, through its Postgres read model, or from
// memory.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by a Gateway when the catalog has no such product.
// Every other Gateway error means the catalog could not answer.
var ErrNotFound = errors.New("catalog: product not found")

// Product is the catalog state the cart reconciles against.
type Product struct {
	ID     string          `json:"id"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Active bool            `json:"active"`
}

// Gateway looks up current product state.
type Gateway interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}
