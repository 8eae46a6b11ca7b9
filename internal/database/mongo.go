package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	AccountsCollection = "accounts"
	AdminsCollection   = "admins"
)

// Mongo owns the process-wide document store client. The connection is
// opened on first use; concurrent first callers share a single connect,
// and a failed connect is retried by the next caller.
type Mongo struct {
	cfg    config.MongoConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(cfg config.MongoConfig, logger *slog.Logger) *Mongo {
	return &Mongo{cfg: cfg, logger: logger}
}

// Database returns the connected database handle, connecting if needed.
func (m *Mongo) Database(ctx context.Context) (*mongo.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(m.cfg.URI).
		SetServerSelectionTimeout(m.cfg.ConnectTimeout).
		SetMaxPoolSize(m.cfg.MaxPoolSize)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	m.client = client
	m.db = client.Database(m.cfg.Database)

	m.logger.Info("mongodb connection established",
		slog.String("database", m.cfg.Database),
		slog.Uint64("max_pool_size", m.cfg.MaxPoolSize),
	)

	return m.db, nil
}

// Collection is shorthand for Database(ctx).Collection(name).
func (m *Mongo) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := m.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// EnsureIndexes creates the unique indexes the repositories rely on.
// magic_key is sparse so accounts without a key never collide.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	db, err := m.Database(ctx)
	if err != nil {
		return err
	}

	indexes := map[string][]mongo.IndexModel{
		AccountsCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("uniq_email").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "magic_key", Value: 1}},
				Options: options.Index().SetName("uniq_magic_key").SetUnique(true).SetSparse(true),
			},
		},
		AdminsCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("uniq_admin_email").SetUnique(true),
			},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", collection, err)
		}
	}
	return nil
}

func (m *Mongo) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	db, err := m.Database(ctx)
	if err != nil {
		return err
	}
	if err := db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	m.logger.Info("closing mongodb connection")
	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	return err
}
