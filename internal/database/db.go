package database

import (
	"errors"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23502", "23514": // not_null_violation, check_violation
			return models.ErrBadRequest
		}
	}

	return err
}

func MapMongoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}

	if mongo.IsDuplicateKeyError(err) {
		return models.ErrConflict
	}

	return err
}
