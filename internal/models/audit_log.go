package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditActionLogin         = "login"
	AuditActionLogout        = "logout"
	AuditActionFailedLogin   = "failed_login"
	AuditActionAccountLocked = "account_locked"
	AuditActionView          = "view"
	AuditActionCreate        = "create"
)

// Audit categories
const (
	AuditCategoryAuthentication = "authentication"
	AuditCategorySecurity       = "security"
	AuditCategoryDataAccess     = "data_access"
	AuditCategorySystem         = "system"
)

// Audit entity types
const (
	AuditEntityAdmin    = "admin"
	AuditEntityAccount  = "account"
	AuditEntityAuditLog = "audit_log"
	AuditEntitySystem   = "system"
)

// Audit severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Audit statuses
const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
	AuditStatusPartial = "partial"
)

// AuditLog is a back-office security event persisted in PostgreSQL.
type AuditLog struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	AdminID       *string       `db:"admin_id" json:"adminId,omitempty"`
	Action        string        `db:"action" json:"action"`
	Category      string        `db:"category" json:"category"`
	EntityType    string        `db:"entity_type" json:"entityType"`
	EntityID      *string       `db:"entity_id" json:"entityId,omitempty"`
	Severity      string        `db:"severity" json:"severity"`
	Status        string        `db:"status" json:"status"`
	IPAddress     *string       `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent     *string       `db:"user_agent" json:"userAgent,omitempty"`
	RequestID     *string       `db:"request_id" json:"requestId,omitempty"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	Tags          []string      `db:"tags" json:"tags"`
	RiskScore     int           `db:"risk_score" json:"riskScore"`
	CorrelationID *string       `db:"correlation_id" json:"correlationId,omitempty"`
	Metadata      AuditMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// AuditLogFilter narrows an audit log listing.
type AuditLogFilter struct {
	Action   string
	Category string
	AdminID  string
	Limit    int
	Offset   int
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	m := make(map[string]interface{})
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(am))
}
