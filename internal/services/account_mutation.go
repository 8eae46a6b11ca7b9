package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dinarexchange/dinar-auth/internal/models"
)

// AccountRepository defines the account persistence the services need.
// Update must be a version compare-and-set returning models.ErrStaleWrite
// when the stored document moved on.
type AccountRepository interface {
	FindOrCreate(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByMagicKey(ctx context.Context, key string) (*models.Account, error)
	Update(ctx context.Context, acc *models.Account) error
}

// errSkipWrite tells mutateAccount that apply made no change worth saving
var errSkipWrite = errors.New("skip write")

// mutateAccount runs a read-modify-write against the account store. load
// fetches a fresh copy on every attempt and apply mutates it; a concurrent
// writer causes the whole cycle to be replayed up to retries more times.
// An error from apply aborts without writing; errSkipWrite aborts
// without writing and without error.
func mutateAccount(
	ctx context.Context,
	repo AccountRepository,
	retries int,
	load func(ctx context.Context) (*models.Account, error),
	apply func(acc *models.Account) error,
) (*models.Account, error) {
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		acc, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := apply(acc); err != nil {
			if errors.Is(err, errSkipWrite) {
				return acc, nil
			}
			return acc, err
		}

		err = repo.Update(ctx, acc)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, models.ErrStaleWrite) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("account update abandoned after %d attempts: %w", retries+1, models.ErrStaleWrite)
}

func loadByID(repo AccountRepository, id string) func(ctx context.Context) (*models.Account, error) {
	return func(ctx context.Context) (*models.Account, error) {
		return repo.GetByID(ctx, id)
	}
}

func loadByEmail(repo AccountRepository, email string) func(ctx context.Context) (*models.Account, error) {
	return func(ctx context.Context) (*models.Account, error) {
		return repo.FindOrCreate(ctx, email)
	}
}
