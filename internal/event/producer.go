package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	pkgkafka "github.com/naman3006/E-commerce-sub001/pkg/kafka"
	"github.com/naman3006/E-commerce-sub001/pkg/logger"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartUpdated = "ecommerce.cart.updated"
	TopicCartCleared = "ecommerce.cart.cleared"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from the cart service.
const SourceCartService = "cart-service"

// MetadataActorID names the caller when it is not the cart owner.
const MetadataActorID = "actor_id"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	OwnerID   string         `json:"owner_id"`
	Anonymous bool           `json:"anonymous"`
	Version   int64          `json:"version"`
	Items     []CartLineData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  string         `json:"subtotal"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	UnitPriceSnapshot string `json:"unit_price_snapshot"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	OwnerID string `json:"owner_id"`
	Version int64  `json:"version"`
}

// Publisher sends an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	lines := cart.SortedLines()
	items := make([]CartLineData, len(lines))
	for i, line := range lines {
		items[i] = CartLineData{
			ProductID:         line.ProductID,
			Quantity:          line.Quantity,
			UnitPriceSnapshot: line.UnitPriceSnapshot.String(),
		}
	}

	totals := domain.ComputeTotals(cart)
	data := CartUpdatedData{
		OwnerID:   cart.OwnerID,
		Anonymous: domain.IsAnonymousOwner(cart.OwnerID),
		Version:   cart.Version,
		Items:     items,
		ItemCount: totals.ItemCount,
		Subtotal:  totals.Subtotal.String(),
	}

	if err := p.publish(ctx, TopicCartUpdated, cart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("owner_id", cart.OwnerID),
		slog.Int("item_count", totals.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, cart *domain.Cart) error {
	data := CartClearedData{OwnerID: cart.OwnerID, Version: cart.Version}

	if err := p.publish(ctx, TopicCartCleared, cart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("owner_id", cart.OwnerID),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic string, cart *domain.Cart, data any) error {
	event, err := pkgkafka.NewEvent(topic, cart.OwnerID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithAggregateVersion(cart.Version)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	// Staff acting on someone else's cart are recorded for audit consumers.
	if actor := logger.UserIDFromContext(ctx); actor != "" && actor != cart.OwnerID {
		event.WithMetadata(MetadataActorID, actor)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Noop discards events. It is used when EVENTS_ENABLED is false.
type Noop struct{}

// PublishCartUpdated does nothing.
func (Noop) PublishCartUpdated(context.Context, *domain.Cart) error { return nil }

// PublishCartCleared does nothing.
func (Noop) PublishCartCleared(context.Context, *domain.Cart) error { return nil }
