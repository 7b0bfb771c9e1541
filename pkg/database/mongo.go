package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds the connection settings for the MongoDB cart store.
type MongoConfig struct {
	URI            string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"cart"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize    uint64        `env:"MONGO_MIN_POOL_SIZE" envDefault:"10"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	SelectTimeout  time.Duration `env:"MONGO_SERVER_SELECTION_TIMEOUT" envDefault:"5s"`
}

// ClientOptions converts the config into driver options.
func (c MongoConfig) ClientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(c.URI).
		SetAppName("cart-service").
		SetConnectTimeout(c.ConnectTimeout).
		SetServerSelectionTimeout(c.SelectTimeout).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize)
}

// NewMongoDatabase connects, pings with retry, and returns the configured
// database. logger may be nil.
func NewMongoDatabase(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, cfg.ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	err = withRetry(ctx, "mongodb", logger, isMongoTransient, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

func isMongoTransient(err error) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorLabel("RetryableWriteError") || srvErr.HasErrorLabel("TransientTransactionError")
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) || isConnectionError(err)
}
