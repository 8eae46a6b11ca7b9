//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dinarexchange/dinar-auth/internal/config"
	"github.com/dinarexchange/dinar-auth/internal/database"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/dinarexchange/dinar-auth/pkg/auth"
)

// TestStores runs PostgreSQL, MongoDB and Redis in containers and holds
// the connected handles the server uses
type TestStores struct {
	containers []testcontainers.Container

	DB    *database.DB
	Mongo *database.Mongo
	Redis *redis.Client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// SetupTestStores starts every container, applies migrations and indexes
func SetupTestStores(ctx context.Context) (*TestStores, error) {
	stores := &TestStores{}
	logger := quietLogger()

	if err := stores.startPostgres(ctx, logger); err != nil {
		stores.Teardown(ctx)
		return nil, err
	}
	if err := stores.startMongo(ctx, logger); err != nil {
		stores.Teardown(ctx)
		return nil, err
	}
	if err := stores.startRedis(ctx, logger); err != nil {
		stores.Teardown(ctx)
		return nil, err
	}

	return stores, nil
}

func (s *TestStores) startPostgres(ctx context.Context, logger *slog.Logger) error {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("dinar_audit"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	s.containers = append(s.containers, container)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	s.DB = database.NewFromPool(pool, logger)
	if err := s.DB.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *TestStores) startMongo(ctx context.Context, logger *slog.Logger) error {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start mongodb container: %w", err)
	}
	s.containers = append(s.containers, container)

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		return fmt.Errorf("failed to get mongodb endpoint: %w", err)
	}

	s.Mongo = database.NewMongo(config.MongoConfig{
		URI:            endpoint,
		Database:       "dinar_test",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    10,
	}, logger)

	return s.Mongo.EnsureIndexes(ctx)
}

func (s *TestStores) startRedis(ctx context.Context, logger *slog.Logger) error {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start redis container: %w", err)
	}
	s.containers = append(s.containers, container)

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		return fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	s.Redis, err = database.NewRedisClient(config.RedisConfig{
		URL:          endpoint + "/0",
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
	}, logger)
	return err
}

// Teardown closes every handle and stops the containers
func (s *TestStores) Teardown(ctx context.Context) {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Mongo != nil {
		_ = s.Mongo.Disconnect(ctx)
	}
	if s.DB != nil {
		s.DB.Close()
	}
	for _, c := range s.containers {
		_ = c.Terminate(ctx)
	}
}

// Reset empties every store for test isolation
func (s *TestStores) Reset(ctx context.Context) error {
	if _, err := s.DB.Pool.Exec(ctx, "TRUNCATE TABLE audit_logs"); err != nil {
		return fmt.Errorf("failed to truncate audit_logs: %w", err)
	}

	db, err := s.Mongo.Database(ctx)
	if err != nil {
		return err
	}
	for _, name := range []string{database.AccountsCollection, database.AdminsCollection} {
		if _, err := db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("failed to empty %s: %w", name, err)
		}
	}

	return s.Redis.FlushDB(ctx).Err()
}

// SeedAccount inserts an account document as-is
func (s *TestStores) SeedAccount(ctx context.Context, acc *models.Account) (*models.Account, error) {
	col, err := s.Mongo.Collection(ctx, database.AccountsCollection)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if acc.ID.IsZero() {
		acc.ID = primitive.NewObjectID()
	}
	if acc.TrustedIPs == nil {
		acc.TrustedIPs = []models.TrustedIP{}
	}
	acc.CreatedAt, acc.UpdatedAt = now, now

	if _, err := col.InsertOne(ctx, acc); err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return acc, nil
}

// LoadAccount reads the stored account for email
func (s *TestStores) LoadAccount(ctx context.Context, email string) (*models.Account, error) {
	col, err := s.Mongo.Collection(ctx, database.AccountsCollection)
	if err != nil {
		return nil, err
	}

	var acc models.Account
	if err := col.FindOne(ctx, bson.M{"email": email}).Decode(&acc); err != nil {
		return nil, database.MapMongoError(err)
	}
	return &acc, nil
}

// SeedAdmin inserts an active admin with the given password and permissions
func (s *TestStores) SeedAdmin(ctx context.Context, email, password, role string, perms models.AdminPermissions) (*models.Admin, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	col, err := s.Mongo.Collection(ctx, database.AdminsCollection)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	admin := &models.Admin{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "Admin",
		Role:         role,
		Permissions:  perms,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := col.InsertOne(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to insert admin: %w", err)
	}
	return admin, nil
}

// CountAuditLogs counts persisted audit rows with the given action
func (s *TestStores) CountAuditLogs(ctx context.Context, action string) (int, error) {
	var n int
	err := s.DB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE action = $1", action).Scan(&n)
	return n, err
}
