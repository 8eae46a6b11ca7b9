package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/database"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AccountRepository persists customer accounts in MongoDB. Every write
// is a compare-and-set on the version field.
type AccountRepository struct {
	mongo *database.Mongo
	now   func() time.Time
}

func NewAccountRepository(m *database.Mongo) *AccountRepository {
	return &AccountRepository{mongo: m, now: time.Now}
}

func (r *AccountRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	return r.mongo.Collection(ctx, database.AccountsCollection)
}

// FindOrCreate returns the account for email, inserting an empty one if
// none exists. email must already be normalized.
func (r *AccountRepository) FindOrCreate(ctx context.Context, email string) (*models.Account, error) {
	col, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"email":          email,
			"trusted_ips":    bson.A{},
			"login_attempts": 0,
			"account_locked": false,
			"version":        int64(0),
			"created_at":     now,
			"updated_at":     now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var acc models.Account
	err = col.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&acc)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race on the unique email index; the winner's document exists now
		err = col.FindOne(ctx, bson.M{"email": email}).Decode(&acc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find or create account: %w", database.MapMongoError(err))
	}

	return &acc, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// GetByMagicKey looks an account up by exact key match.
func (r *AccountRepository) GetByMagicKey(ctx context.Context, key string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"magic_key": key})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	col, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	var acc models.Account
	if err := col.FindOne(ctx, filter).Decode(&acc); err != nil {
		return nil, database.MapMongoError(err)
	}
	return &acc, nil
}

// Update replaces the stored account if its version still equals
// acc.Version. On success acc.Version is incremented. A concurrent
// modification yields models.ErrStaleWrite and leaves the store untouched.
func (r *AccountRepository) Update(ctx context.Context, acc *models.Account) error {
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}

	next := *acc
	next.Version = acc.Version + 1
	next.UpdatedAt = r.now().UTC()
	if next.TrustedIPs == nil {
		next.TrustedIPs = []models.TrustedIP{}
	}

	filter := bson.M{"_id": acc.ID, "version": acc.Version}
	res, err := col.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", database.MapMongoError(err))
	}
	if res.MatchedCount == 0 {
		return models.ErrStaleWrite
	}

	*acc = next
	return nil
}
