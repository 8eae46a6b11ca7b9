package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Record_BuildsLog(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := NewAuditService(repo, discardLogger())

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")

	svc.Record(ctx, AuditEntry{
		AdminID:    "admin-1",
		Action:     models.AuditActionFailedLogin,
		Category:   models.AuditCategoryAuthentication,
		EntityType: models.AuditEntityAdmin,
		IPAddress:  "203.0.113.5",
		Notes:      "invalid_password",
		Tags:       []string{"admin"},
	})

	require.Len(t, repo.Created, 1)
	log := repo.Created[0]
	assert.Equal(t, models.AuditStatusFailed, log.Status)
	assert.Equal(t, models.SeverityMedium, log.Severity)
	assert.Equal(t, 40, log.RiskScore)
	require.NotNil(t, log.AdminID)
	assert.Equal(t, "admin-1", *log.AdminID)
	assert.Nil(t, log.EntityID)
	assert.Nil(t, log.UserAgent)
	require.NotNil(t, log.RequestID)
	assert.Equal(t, "req-123", *log.RequestID)
	assert.Equal(t, log.RequestID, log.CorrelationID)
}

func TestAuditService_Record_SwallowsStoreErrors(t *testing.T) {
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			return nil, errors.New("postgres down")
		},
	}
	svc := NewAuditService(repo, discardLogger())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), AuditEntry{Action: models.AuditActionLogin, Success: true})
	})
	assert.Len(t, repo.Created, 1)
}

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		action    string
		success   bool
		severity  string
		riskScore int
	}{
		{models.AuditActionAccountLocked, false, models.SeverityHigh, 80},
		{models.AuditActionFailedLogin, false, models.SeverityMedium, 40},
		{models.AuditActionView, false, models.SeverityMedium, 30},
		{models.AuditActionLogin, true, models.SeverityLow, 0},
	}
	for _, tt := range tests {
		severity, score := assessRisk(tt.action, tt.success)
		assert.Equal(t, tt.severity, severity, tt.action)
		assert.Equal(t, tt.riskScore, score, tt.action)
	}
}

func TestAuditService_List_ClampsPage(t *testing.T) {
	var seen models.AuditLogFilter
	repo := &MockAuditLogRepository{
		ListFunc: func(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
			seen = filter
			return []*models.AuditLog{{Action: models.AuditActionLogin}}, nil
		},
		CountFunc: func(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
			return 7, nil
		},
	}
	svc := NewAuditService(repo, discardLogger())

	page, err := svc.List(context.Background(), models.AuditLogFilter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, 100, seen.Limit)
	assert.Equal(t, 0, seen.Offset)
	assert.Equal(t, int64(7), page.Total)
	assert.Len(t, page.Logs, 1)

	_, err = svc.List(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 50, seen.Limit)
}

func TestAuditService_List_StoreError(t *testing.T) {
	repo := &MockAuditLogRepository{
		ListFunc: func(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
			return nil, errors.New("boom")
		},
	}
	svc := NewAuditService(repo, discardLogger())

	_, err := svc.List(context.Background(), models.AuditLogFilter{})
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuditService_Prune(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var seen time.Time
	repo := &MockAuditLogRepository{
		DeleteOlderThanFunc: func(ctx context.Context, c time.Time) (int64, error) {
			seen = c
			return 3, nil
		},
	}

	n, err := NewAuditService(repo, discardLogger()).Prune(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, cutoff, seen)
}
