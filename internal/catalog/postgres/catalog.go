// Package postgres implements catalog.Gateway by reading the catalog's
// Postgres read model directly.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	"github.com/naman3006/E-commerce-sub001/pkg/database"
)

// statusPublished is the only product status a cart may hold.
const statusPublished = "published"

// Prices are stored in minor units (cents).
const priceExponent = -2

const getProductQuery = `
		SELECT p.id, p.base_price, p.status,
			COALESCE(SUM(GREATEST(s.quantity - s.reserved, 0)), 0)::int AS available
		FROM products p
		LEFT JOIN stock s ON s.product_id = p.id
		WHERE p.id = $1
		GROUP BY p.id, p.base_price, p.status`

// Gateway reads products and their available stock from Postgres.
type Gateway struct {
	pool database.DBTX
}

// NewGateway creates a new Postgres-backed catalog gateway.
func NewGateway(pool database.DBTX) *Gateway {
	return &Gateway{pool: pool}
}

// GetProduct returns the product with its stock summed across warehouses,
// net of reservations.
func (g *Gateway) GetProduct(ctx context.Context, productID string) (p *catalog.Product, err error) {
	ctx, end := database.TraceQuery(ctx, "GetProduct", getProductQuery)
	defer func() {
		// A missing product is an answer, not a failure of the query.
		if errors.Is(err, catalog.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var (
		id         string
		priceMinor int64
		status     string
		available  int
	)
	err = g.pool.QueryRow(ctx, getProductQuery, productID).Scan(&id, &priceMinor, &status, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("get catalog product: %w", err)
	}

	return &catalog.Product{
		ID:     id,
		Price:  decimal.New(priceMinor, priceExponent),
		Stock:  available,
		Active: status == statusPublished,
	}, nil
}
