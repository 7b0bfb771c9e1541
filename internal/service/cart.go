package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/naman3006/E-commerce-sub001/internal/catalog"
	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/internal/repository"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
	"github.com/naman3006/E-commerce-sub001/pkg/tracing"
)

var tracer = tracing.Tracer("cart/service")

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerLine is the maximum quantity held for a single product.
	MaxQuantityPerLine = 100
	// MaxLinesPerCart is the maximum number of distinct products in a cart.
	MaxLinesPerCart = 50
	// DefaultCatalogTimeout bounds a single catalog lookup.
	DefaultCatalogTimeout = 2 * time.Second
)

// EventPublisher is notified after every committed cart mutation.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, cart *domain.Cart) error
}

// CartService implements the cart engine: every mutation is one
// load, validate against the catalog, mutate, save cycle. It trusts the owner
// id it is given; scoping is the caller's job.
type CartService struct {
	store          repository.CartStore
	catalog        catalog.Gateway
	publisher      EventPublisher
	logger         *slog.Logger
	catalogTimeout time.Duration
	now            func() time.Time
}

// NewCartService creates a new cart service. A non-positive catalogTimeout
// uses DefaultCatalogTimeout.
func NewCartService(
	store repository.CartStore,
	gateway catalog.Gateway,
	publisher EventPublisher,
	logger *slog.Logger,
	catalogTimeout time.Duration,
) *CartService {
	if catalogTimeout <= 0 {
		catalogTimeout = DefaultCatalogTimeout
	}
	return &CartService{
		store:          store,
		catalog:        gateway,
		publisher:      publisher,
		logger:         logger,
		catalogTimeout: catalogTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the owner's cart. An owner without a stored cart gets an
// empty cart at version 0; nothing is persisted.
func (s *CartService) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("owner id is required")
	}
	return s.loadOrNew(ctx, ownerID)
}

// GetSnapshot returns the cart together with its derived totals.
func (s *CartService) GetSnapshot(ctx context.Context, ownerID string) (domain.Snapshot, error) {
	cart, err := s.GetCart(ctx, ownerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.NewSnapshot(cart), nil
}

// ComputeTotals derives item count and advisory subtotal from a cart.
func (s *CartService) ComputeTotals(cart *domain.Cart) domain.Totals {
	return domain.ComputeTotals(cart)
}

// AddItem adds quantity units of a product, merging into an existing line.
// The resulting quantity is capped at the catalog's stock and at
// MaxQuantityPerLine; a cap is reported as a warning, not an error.
func (s *CartService) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("owner id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}

	cart, err := s.loadOrNew(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	line, exists := cart.Line(productID)
	if !exists {
		if len(cart.Items) >= MaxLinesPerCart {
			return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d products", MaxLinesPerCart))
		}
		line = domain.CartLine{ProductID: productID, AddedAt: now}
	}

	applied, warnings := reconcileQuantity(productID, line.Quantity+quantity, product.Stock)
	line.Quantity = applied
	line.UnitPriceSnapshot = product.Price
	cart.SetLine(line)

	saved, err := s.save(ctx, cart, now)
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, saved)
	s.logWarnings(ctx, saved.OwnerID, warnings)
	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("owner_id", ownerID),
		slog.String("product_id", productID),
		slog.Int("requested", quantity),
		slog.Int("quantity", applied),
		slog.Int64("version", saved.Version),
	)

	return &domain.Result{Cart: saved, Warnings: warnings}, nil
}

// UpdateItem sets the quantity of an existing line. Zero removes the line
// without consulting the catalog; any other value is re-validated and capped
// like AddItem and refreshes the price snapshot.
func (s *CartService) UpdateItem(ctx context.Context, ownerID, productID string, quantity int) (*domain.Result, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("owner id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if quantity > MaxQuantityPerLine {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}

	cart, err := s.loadOrNew(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	line, exists := cart.Line(productID)
	if !exists {
		return nil, domain.LineNotFound(productID)
	}

	var warnings []domain.Warning
	if quantity == 0 {
		cart.RemoveLine(productID)
	} else {
		product, err := s.activeProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		line.Quantity, warnings = reconcileQuantity(productID, quantity, product.Stock)
		line.UnitPriceSnapshot = product.Price
		cart.SetLine(line)
	}

	saved, err := s.save(ctx, cart, s.now())
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, saved)
	s.logWarnings(ctx, saved.OwnerID, warnings)
	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("owner_id", ownerID),
		slog.String("product_id", productID),
		slog.Int("requested", quantity),
		slog.Int64("version", saved.Version),
	)

	return &domain.Result{Cart: saved, Warnings: warnings}, nil
}

// RemoveItem deletes a line. Removing an absent line succeeds and still
// advances the version.
func (s *CartService) RemoveItem(ctx context.Context, ownerID, productID string) (*domain.Result, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("owner id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.loadOrNew(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	cart.RemoveLine(productID)

	saved, err := s.save(ctx, cart, s.now())
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, saved)
	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("owner_id", ownerID),
		slog.String("product_id", productID),
		slog.Int64("version", saved.Version),
	)

	return &domain.Result{Cart: saved}, nil
}

// ClearCart empties the cart. It always succeeds on a reachable store, even
// for an empty or never-stored cart, and advances the version.
func (s *CartService) ClearCart(ctx context.Context, ownerID string) (*domain.Result, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("owner id is required")
	}

	cart, err := s.loadOrNew(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	cart.Clear()

	saved, err := s.save(ctx, cart, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishCartCleared(ctx, saved); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("owner_id", ownerID),
		slog.Int64("version", saved.Version),
	)

	return &domain.Result{Cart: saved}, nil
}

// ValidateCart compares every line with the live catalog and reports drift:
// removed or inactive products, stock below the held quantity, and changed
// prices. The cart is not modified.
func (s *CartService) ValidateCart(ctx context.Context, ownerID string) (*domain.Result, error) {
	cart, err := s.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var warnings []domain.Warning
	for _, line := range cart.SortedLines() {
		product, err := s.lookupProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				warnings = append(warnings, domain.Warning{
					Code:      domain.WarningProductRemoved,
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Message:   "product is no longer sold",
				})
				continue
			}
			return nil, err
		}

		if !product.Active {
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningProductInactive,
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Message:   "product is currently unavailable",
			})
			continue
		}
		if product.Stock < line.Quantity {
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningStockReduced,
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Applied:   max(product.Stock, 0),
				Message:   fmt.Sprintf("only %d units left in stock", max(product.Stock, 0)),
			})
		}
		if !product.Price.Equal(line.UnitPriceSnapshot) {
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningPriceChanged,
				ProductID: line.ProductID,
				Message: fmt.Sprintf("price changed from %s to %s",
					line.UnitPriceSnapshot.StringFixed(2), product.Price.StringFixed(2)),
			})
		}
	}

	return &domain.Result{Cart: cart, Warnings: warnings}, nil
}

// MergeCarts folds the lines of fromOwner's cart into toOwner's cart with the
// AddItem merge and cap policy, then empties the source. Products that are
// gone or inactive are skipped with a warning. The target is written in one
// save; if emptying the source fails afterwards the merge still stands.
func (s *CartService) MergeCarts(ctx context.Context, fromOwner, toOwner string) (*domain.Result, error) {
	if fromOwner == "" || toOwner == "" {
		return nil, apperrors.InvalidInput("source and target owner ids are required")
	}
	if fromOwner == toOwner {
		return nil, apperrors.InvalidInput("cannot merge a cart into itself")
	}

	source, err := s.loadOrNew(ctx, fromOwner)
	if err != nil {
		return nil, err
	}
	target, err := s.loadOrNew(ctx, toOwner)
	if err != nil {
		return nil, err
	}
	if source.IsEmpty() {
		return &domain.Result{Cart: target}, nil
	}

	now := s.now()
	var warnings []domain.Warning
	for _, incoming := range source.SortedLines() {
		product, err := s.lookupProduct(ctx, incoming.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningProductRemoved,
				ProductID: incoming.ProductID,
				Requested: incoming.Quantity,
				Message:   "product is no longer sold and was not merged",
			})
			continue
		case err != nil:
			return nil, err
		case !product.Active:
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningProductInactive,
				ProductID: incoming.ProductID,
				Requested: incoming.Quantity,
				Message:   "product is currently unavailable and was not merged",
			})
			continue
		}

		line, exists := target.Line(incoming.ProductID)
		if !exists {
			if len(target.Items) >= MaxLinesPerCart {
				warnings = append(warnings, domain.Warning{
					Code:      domain.WarningQuantityLimit,
					ProductID: incoming.ProductID,
					Requested: incoming.Quantity,
					Message:   fmt.Sprintf("cart already holds %d products", MaxLinesPerCart),
				})
				continue
			}
			line = domain.CartLine{ProductID: incoming.ProductID, AddedAt: now}
		}

		applied, lineWarnings := reconcileQuantity(incoming.ProductID, line.Quantity+incoming.Quantity, product.Stock)
		warnings = append(warnings, lineWarnings...)
		line.Quantity = applied
		line.UnitPriceSnapshot = product.Price
		target.SetLine(line)
	}

	saved, err := s.save(ctx, target, now)
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, saved)

	source.Clear()
	if cleared, err := s.save(ctx, source, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear merged source cart",
			slog.String("from_owner_id", fromOwner),
			slog.String("to_owner_id", toOwner),
			slog.String("error", err.Error()),
		)
	} else if err := s.publisher.PublishCartCleared(ctx, cleared); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("owner_id", fromOwner),
			slog.String("error", err.Error()),
		)
	}

	s.logWarnings(ctx, toOwner, warnings)
	s.logger.InfoContext(ctx, "carts merged",
		slog.String("from_owner_id", fromOwner),
		slog.String("to_owner_id", toOwner),
		slog.Int("lines", len(saved.Items)),
		slog.Int64("version", saved.Version),
	)

	return &domain.Result{Cart: saved, Warnings: warnings}, nil
}

// reconcileQuantity caps a requested line quantity at the per-line ceiling
// and at available stock. A result of 0 means the line must not exist.
func reconcileQuantity(productID string, requested, stock int) (int, []domain.Warning) {
	var warnings []domain.Warning
	applied := requested

	if applied > MaxQuantityPerLine {
		warnings = append(warnings, domain.LimitCapped(productID, requested, MaxQuantityPerLine))
		applied = MaxQuantityPerLine
	}
	if stock < 0 {
		stock = 0
	}
	if applied > stock {
		warnings = append(warnings, domain.StockCapped(productID, requested, stock))
		applied = stock
	}

	return applied, warnings
}

// activeProduct looks up a product that may be placed in a cart.
func (s *CartService) activeProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	product, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, domain.ProductInactive(productID)
	}
	return product, nil
}

// lookupProduct queries the catalog under the configured timeout. Anything
// other than a definite "not found" means the catalog could not answer.
func (s *CartService) lookupProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "catalog.GetProduct",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("product.id", productID)),
	)
	defer span.End()

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, domain.ProductNotFound(productID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog unavailable")
		s.logger.WarnContext(ctx, "catalog lookup failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil, domain.CatalogUnavailable(err)
	}
	return product, nil
}

// loadOrNew loads the owner's cart, or returns an unsaved empty cart.
func (s *CartService) loadOrNew(ctx context.Context, ownerID string) (*domain.Cart, error) {
	cart, err := s.store.Load(ctx, ownerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(ownerID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart, now time.Time) (*domain.Cart, error) {
	cart.UpdatedAt = now
	saved, err := s.store.Save(ctx, cart)
	if err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return saved, nil
}

func (s *CartService) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.publisher.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("owner_id", cart.OwnerID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) logWarnings(ctx context.Context, ownerID string, warnings []domain.Warning) {
	for _, w := range warnings {
		reconciliationWarningsTotal.WithLabelValues(w.Code).Inc()
		s.logger.WarnContext(ctx, "cart reconciled against catalog",
			slog.String("owner_id", ownerID),
			slog.String("code", w.Code),
			slog.String("product_id", w.ProductID),
			slog.Int("requested", w.Requested),
			slog.Int("applied", w.Applied),
		)
	}
}
