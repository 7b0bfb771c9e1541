package repository

import (
	"context"
	"errors"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

// CartStore defines the interface for cart persistence with optimistic concurrency.
type CartStore interface {
	// Load retrieves the cart for an owner. A missing cart is reported as
	// apperrors.ErrNotFound.
	Load(ctx context.Context, ownerID string) (*domain.Cart, error)

	// Save writes the cart only if the stored version still equals cart.Version
	// (or nothing is stored and cart.Version is 0). The stored cart, with its
	// version incremented, is returned. A mismatch fails with
	// domain.ErrConcurrentModification and nothing is written.
	Save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// TraceError filters the error handed to a datastore span. A missing cart
// and a version conflict are normal outcomes, not datastore failures.
func TraceError(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, domain.ErrConcurrentModification) {
		return nil
	}
	return err
}
