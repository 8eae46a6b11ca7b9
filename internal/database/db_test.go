package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))
	assert.ErrorIs(t, MapPostgresError(pgx.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, MapPostgresError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23505"}), models.ErrConflict)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23514"}), models.ErrBadRequest)

	other := errors.New("connection reset")
	assert.Equal(t, other, MapPostgresError(other))
}

func TestMapMongoError(t *testing.T) {
	assert.NoError(t, MapMongoError(nil))
	assert.ErrorIs(t, MapMongoError(mongo.ErrNoDocuments), models.ErrNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, MapMongoError(dup), models.ErrConflict)

	other := errors.New("server selection timeout")
	assert.Equal(t, other, MapMongoError(other))
}
