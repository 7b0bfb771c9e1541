// Package memory provides an in-process cart store for local development and
// tests. Carts are lost when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

// CartRepository implements repository.CartStore with a mutex-guarded map.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

// NewCartRepository creates an empty in-memory cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*domain.Cart)}
}

// Load returns a copy of the stored cart.
func (r *CartRepository) Load(_ context.Context, ownerID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[ownerID]
	if !ok {
		return nil, apperrors.NotFound("cart", ownerID)
	}
	return cart.Clone(), nil
}

// Save stores a copy of the cart if the stored version still matches.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var stored int64
	if existing, ok := r.carts[cart.OwnerID]; ok {
		stored = existing.Version
	}
	if stored != cart.Version {
		return nil, domain.ConcurrentModification(cart.OwnerID, cart.Version)
	}

	next := cart.Clone()
	next.Version = cart.Version + 1
	r.carts[cart.OwnerID] = next
	return next.Clone(), nil
}

// Ping always succeeds.
func (r *CartRepository) Ping(context.Context) error {
	return nil
}
