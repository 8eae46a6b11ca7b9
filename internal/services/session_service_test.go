package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_CreateResolveRevoke(t *testing.T) {
	store := NewMockSessionStore()
	svc := NewSessionService(store, 30*24*time.Hour, discardLogger())
	ctx := context.Background()

	token, err := svc.Create(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, token, 43, "32 bytes base64url without padding")

	other, err := svc.Create(ctx, "acc-1")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	id, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)

	require.NoError(t, svc.Revoke(ctx, token))
	_, err = svc.Resolve(ctx, token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	n, err := svc.RevokeAll(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, svc.Revoke(ctx, ""))
}

func TestSessionService_UsesConfiguredTTL(t *testing.T) {
	store := NewMockSessionStore()
	var saved time.Duration
	store.SaveFunc = func(ctx context.Context, token, accountID string, ttl time.Duration) error {
		saved = ttl
		return nil
	}
	svc := NewSessionService(store, 30*24*time.Hour, discardLogger())

	_, err := svc.Create(context.Background(), "acc-1")

	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, saved)
	assert.Equal(t, 30*24*time.Hour, svc.TTL())
}

func TestSessionService_ResolveStoreFailure(t *testing.T) {
	store := NewMockSessionStore()
	store.GetFunc = func(ctx context.Context, token string) (string, error) {
		return "", errors.New("redis down")
	}
	svc := NewSessionService(store, time.Hour, discardLogger())

	_, err := svc.Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, models.ErrInternalServer)

	_, err = svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
