package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/database"
	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const auditLogColumns = `id, admin_id, action, category, entity_type, entity_id, severity, status,
	ip_address, user_agent, request_id, notes, tags, risk_score, correlation_id, metadata, created_at`

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog

	err := row.Scan(
		&log.ID, &log.AdminID, &log.Action, &log.Category, &log.EntityType, &log.EntityID,
		&log.Severity, &log.Status, &log.IPAddress, &log.UserAgent, &log.RequestID, &log.Notes,
		pq.Array(&log.Tags), &log.RiskScore, &log.CorrelationID, &log.Metadata, &log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &log, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)

	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Create inserts an audit log entry. ID and CreatedAt are assigned when unset.
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Tags == nil {
		log.Tags = []string{}
	}

	query := `
		INSERT INTO audit_logs (` + auditLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + auditLogColumns

	result, err := scanAuditLogRow(r.pool.QueryRow(
		ctx, query,
		log.ID, log.AdminID, log.Action, log.Category, log.EntityType, log.EntityID,
		log.Severity, log.Status, log.IPAddress, log.UserAgent, log.RequestID, log.Notes,
		pq.Array(log.Tags), log.RiskScore, log.CorrelationID, log.Metadata, log.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return result, nil
}

// List returns audit logs newest first, narrowed by the non-empty filter fields.
func (r *AuditLogRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	where, args := buildAuditFilter(filter)

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, auditLogColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return scanAuditLogRows(rows)
}

// Count returns the number of logs matching the filter, ignoring paging.
func (r *AuditLogRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	where, args := buildAuditFilter(filter)

	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// DeleteOlderThan removes audit logs created before cutoff
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected(), nil
}

func buildAuditFilter(filter models.AuditLogFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("action", filter.Action)
	add("category", filter.Category)
	add("admin_id", filter.AdminID)

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
