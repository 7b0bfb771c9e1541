// Package access is the entry point for cart operations. It resolves who may
// act on which cart and retries optimistic-concurrency conflicts before they
// reach the caller.
package access

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

const (
	// DefaultMaxAttempts bounds how often a conflicting mutation is tried.
	DefaultMaxAttempts = 3

	retryBaseWait       = 10 * time.Millisecond
	retryJitterFraction = 0.25
)

// Engine is the cart engine as seen by the access layer.
type Engine interface {
	GetSnapshot(ctx context.Context, ownerID string) (domain.Snapshot, error)
	AddItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error)
	UpdateItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error)
	RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Result, error)
	ClearCart(ctx context.Context, ownerID string) (*domain.Result, error)
	ValidateCart(ctx context.Context, ownerID string) (*domain.Result, error)
	MergeCarts(ctx context.Context, fromOwner, toOwner string) (*domain.Result, error)
}

// Scope names the cart being acted on and who is acting.
type Scope struct {
	OwnerID string
	ActorID string
	Admin   bool
}

// Self scopes an operation to the caller's own cart.
func Self(ownerID string) Scope {
	return Scope{OwnerID: ownerID, ActorID: ownerID}
}

// Admin scopes an operation by an administrator to any owner's cart. The
// caller must already have verified the admin capability.
func Admin(actorID, ownerID string) Scope {
	return Scope{OwnerID: ownerID, ActorID: actorID, Admin: true}
}

func (s Scope) authorize() error {
	if s.ActorID == "" {
		return apperrors.Unauthorized("authentication required")
	}
	if s.OwnerID == "" {
		return apperrors.InvalidInput("owner id is required")
	}
	if !s.Admin && s.ActorID != s.OwnerID {
		return apperrors.Forbidden("cannot access another owner's cart")
	}
	return nil
}

// Service routes scoped requests to the engine.
type Service struct {
	engine      Engine
	logger      *slog.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewService creates the access layer. maxAttempts below 1 uses
// DefaultMaxAttempts.
func NewService(engine Engine, logger *slog.Logger, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		engine:      engine,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     retryBackoff,
	}
}

// GetCart returns the scoped cart with its totals.
func (s *Service) GetCart(ctx context.Context, scope Scope) (domain.Snapshot, error) {
	if err := scope.authorize(); err != nil {
		return domain.Snapshot{}, err
	}
	return s.engine.GetSnapshot(ctx, scope.OwnerID)
}

// AddItem adds units of a product to the scoped cart.
func (s *Service) AddItem(ctx context.Context, scope Scope, productID string, quantity int) (*domain.Result, error) {
	return s.mutate(ctx, scope, "add_item", func() (*domain.Result, error) {
		return s.engine.AddItem(ctx, scope.OwnerID, productID, quantity)
	})
}

// UpdateItem sets the quantity of a line in the scoped cart.
func (s *Service) UpdateItem(ctx context.Context, scope Scope, productID string, quantity int) (*domain.Result, error) {
	return s.mutate(ctx, scope, "update_item", func() (*domain.Result, error) {
		return s.engine.UpdateItem(ctx, scope.OwnerID, productID, quantity)
	})
}

// RemoveItem removes a line from the scoped cart.
func (s *Service) RemoveItem(ctx context.Context, scope Scope, productID string) (*domain.Result, error) {
	return s.mutate(ctx, scope, "remove_item", func() (*domain.Result, error) {
		return s.engine.RemoveItem(ctx, scope.OwnerID, productID)
	})
}

// ClearCart empties the scoped cart.
func (s *Service) ClearCart(ctx context.Context, scope Scope) (*domain.Result, error) {
	return s.mutate(ctx, scope, "clear_cart", func() (*domain.Result, error) {
		return s.engine.ClearCart(ctx, scope.OwnerID)
	})
}

// ValidateCart reports drift between the scoped cart and the catalog.
func (s *Service) ValidateCart(ctx context.Context, scope Scope) (*domain.Result, error) {
	if err := scope.authorize(); err != nil {
		return nil, err
	}
	return s.engine.ValidateCart(ctx, scope.OwnerID)
}

// MergeSession folds an anonymous session's cart into the scoped user's
// cart. Only a registered owner can absorb a session cart, and callers must
// pass a session the requester has proven it holds.
func (s *Service) MergeSession(ctx context.Context, scope Scope, sessionID string) (*domain.Result, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}
	if domain.IsAnonymousOwner(scope.OwnerID) {
		return nil, apperrors.Forbidden("an anonymous session cannot absorb another cart")
	}
	from := domain.AnonymousOwner(sessionID)
	return s.mutate(ctx, scope, "merge_carts", func() (*domain.Result, error) {
		return s.engine.MergeCarts(ctx, from, scope.OwnerID)
	})
}

// mutate authorizes the scope and runs fn, retrying while it loses
// optimistic-concurrency races. Each attempt reloads the cart inside the
// engine, so a retry re-applies the request to fresh state.
func (s *Service) mutate(ctx context.Context, scope Scope, operation string, fn func() (*domain.Result, error)) (*domain.Result, error) {
	if err := scope.authorize(); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil {
			if scope.Admin {
				s.logger.InfoContext(ctx, "admin cart mutation",
					slog.String("operation", operation),
					slog.String("actor_id", scope.ActorID),
					slog.String("owner_id", scope.OwnerID),
				)
			}
			return res, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return nil, err
		}

		if attempt+1 >= s.maxAttempts {
			conflictsExhaustedTotal.WithLabelValues(operation).Inc()
			s.logger.WarnContext(ctx, "cart conflict retries exhausted",
				slog.String("operation", operation),
				slog.String("owner_id", scope.OwnerID),
				slog.Int("attempts", attempt+1),
			)
			return nil, err
		}

		conflictRetriesTotal.WithLabelValues(operation).Inc()
		wait := s.backoff(attempt)
		s.logger.DebugContext(ctx, "cart modified concurrently, retrying",
			slog.String("operation", operation),
			slog.String("owner_id", scope.OwnerID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(wait):
		}
	}
}

// retryBackoff returns the wait before retry attempt (0-indexed) with ±25%
// jitter. Base delays: 10ms, 20ms, 40ms.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := retryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
	return base + jitter
}
