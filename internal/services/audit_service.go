package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/go-chi/chi/v5/middleware"
)

// AuditLogRepository defines the audit log persistence the service needs
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error)
	Count(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is the caller-facing shape of an audit event
type AuditEntry struct {
	AdminID    string
	Action     string
	Category   string
	EntityType string
	EntityID   string
	Success    bool
	IPAddress  string
	UserAgent  string
	Notes      string
	Tags       []string
	Metadata   models.AuditMetadata
}

const (
	maxAuditPageSize     = 100
	defaultAuditPageSize = 50
)

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
}

func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record writes the entry to the log stream and then to PostgreSQL. A
// persistence failure is logged and swallowed so it never fails the
// operation being audited.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	log := s.build(ctx, entry)

	attrs := []any{
		slog.String("action", log.Action),
		slog.String("category", log.Category),
		slog.String("status", log.Status),
		slog.String("severity", log.Severity),
		slog.Int("risk_score", log.RiskScore),
	}
	if entry.AdminID != "" {
		attrs = append(attrs, slog.String("admin_id", entry.AdminID))
	}

	if entry.Success {
		s.logger.InfoContext(ctx, "audit event", attrs...)
	} else {
		s.logger.WarnContext(ctx, "audit event failed", attrs...)
	}

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("action", log.Action),
			slog.Any("error", err),
		)
	}
}

func (s *AuditService) build(ctx context.Context, entry AuditEntry) *models.AuditLog {
	log := &models.AuditLog{
		Action:     entry.Action,
		Category:   entry.Category,
		EntityType: entry.EntityType,
		Status:     models.AuditStatusSuccess,
		Tags:       entry.Tags,
		Metadata:   entry.Metadata,
	}
	if !entry.Success {
		log.Status = models.AuditStatusFailed
	}

	log.Severity, log.RiskScore = assessRisk(entry.Action, entry.Success)

	log.AdminID = optional(entry.AdminID)
	log.EntityID = optional(entry.EntityID)
	log.IPAddress = optional(entry.IPAddress)
	log.UserAgent = optional(entry.UserAgent)
	log.Notes = optional(entry.Notes)
	log.RequestID = optional(middleware.GetReqID(ctx))
	log.CorrelationID = log.RequestID

	return log
}

// assessRisk grades an action for triage in the back office
func assessRisk(action string, success bool) (string, int) {
	switch {
	case action == models.AuditActionAccountLocked:
		return models.SeverityHigh, 80
	case action == models.AuditActionFailedLogin:
		return models.SeverityMedium, 40
	case !success:
		return models.SeverityMedium, 30
	default:
		return models.SeverityLow, 0
	}
}

// AuditLogPage is one page of an audit log listing
type AuditLogPage struct {
	Logs   []*models.AuditLog `json:"logs"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// List returns a page of audit logs, clamping the page size.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) (*AuditLogPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list audit logs", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to count audit logs", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuditLogPage{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Prune deletes audit logs older than cutoff
func (s *AuditService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
