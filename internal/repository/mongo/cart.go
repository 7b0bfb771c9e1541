package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/internal/repository"
	"github.com/naman3006/E-commerce-sub001/pkg/database"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

const collectionName = "carts"

// CartRepository implements repository.CartStore using MongoDB. Each cart is
// one document keyed by a unique owner_id; writes are filtered on version.
type CartRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewCartRepository creates a new MongoDB-backed cart repository. ttl is the
// inactivity period after which EnsureIndexes lets MongoDB expire a cart;
// zero disables expiry.
func NewCartRepository(db *mongo.Database, ttl time.Duration) *CartRepository {
	return &CartRepository{
		collection: db.Collection(collectionName),
		ttl:        ttl,
	}
}

// EnsureIndexes creates the unique owner index that makes a concurrent first
// save fail, plus the expiry index on updated_at.
func (r *CartRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if r.ttl > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.ttl / time.Second)),
		})
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Load retrieves a cart by owner ID.
func (r *CartRepository) Load(ctx context.Context, ownerID string) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "mongodb", "LoadCart", "carts.findOne {owner_id}")
	defer func() { end(repository.TraceError(err)) }()

	var rec repository.CartRecord
	err = r.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("cart", ownerID)
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart, err := repository.FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", ownerID, err)
	}
	return cart, nil
}

// Save inserts the first version of a cart, or replaces the document whose
// version still equals cart.Version.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "mongodb", "SaveCart", "carts.replaceOne {owner_id, version}")
	defer func() { end(repository.TraceError(err)) }()

	expected := cart.Version

	next := cart.Clone()
	next.Version = expected + 1
	rec := repository.ToRecord(next)

	conflict := domain.ConcurrentModification(cart.OwnerID, expected)

	if expected == 0 {
		if _, err := r.collection.InsertOne(ctx, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, conflict
			}
			return nil, fmt.Errorf("failed to insert cart: %w", err)
		}
		return next, nil
	}

	filter := bson.M{"owner_id": cart.OwnerID, "version": expected}
	result, err := r.collection.ReplaceOne(ctx, filter, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to replace cart: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, conflict
	}
	return next, nil
}

// Ping checks the MongoDB connection.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

// Disconnect closes the underlying client.
func (r *CartRepository) Disconnect(ctx context.Context) error {
	return r.collection.Database().Client().Disconnect(ctx)
}
