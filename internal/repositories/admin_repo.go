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
)

// AdminRepository persists back-office operators in MongoDB.
type AdminRepository struct {
	mongo *database.Mongo
	now   func() time.Time
}

func NewAdminRepository(m *database.Mongo) *AdminRepository {
	return &AdminRepository{mongo: m, now: time.Now}
}

func (r *AdminRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	return r.mongo.Collection(ctx, database.AdminsCollection)
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *AdminRepository) findOne(ctx context.Context, filter bson.M) (*models.Admin, error) {
	col, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	var admin models.Admin
	if err := col.FindOne(ctx, filter).Decode(&admin); err != nil {
		return nil, database.MapMongoError(err)
	}
	return &admin, nil
}

func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	admin.ID = primitive.NewObjectID()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	if _, err := col.InsertOne(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", database.MapMongoError(err))
	}
	return nil
}

// UpdateLoginState persists the lock counter, lock expiry and last login
// if the stored version still equals admin.Version. A concurrent login
// attempt yields models.ErrStaleWrite and leaves the store untouched.
func (r *AdminRepository) UpdateLoginState(ctx context.Context, admin *models.Admin) error {
	col, err := r.collection(ctx)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	set := bson.M{
		"login_attempts": admin.LoginAttempts,
		"version":        admin.Version + 1,
		"updated_at":     now,
	}
	update := bson.M{"$set": set}

	if admin.LockUntil != nil {
		set["lock_until"] = *admin.LockUntil
	} else {
		update["$unset"] = bson.M{"lock_until": ""}
	}
	if admin.LastLogin != nil {
		set["last_login"] = *admin.LastLogin
	}

	filter := bson.M{"_id": admin.ID, "version": admin.Version}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update admin login state: %w", database.MapMongoError(err))
	}
	if res.MatchedCount == 0 {
		return models.ErrStaleWrite
	}

	admin.Version++
	admin.UpdatedAt = now
	return nil
}
