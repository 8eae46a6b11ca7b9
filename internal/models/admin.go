package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Admin roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleSupport = "support"
)

// Admin permissions
const (
	PermViewOrders    = "canViewOrders"
	PermEditOrders    = "canEditOrders"
	PermDeleteOrders  = "canDeleteOrders"
	PermViewCustomers = "canViewCustomers"
	PermEditCustomers = "canEditCustomers"
	PermViewAnalytics = "canViewAnalytics"
	PermManageAdmins  = "canManageAdmins"
	PermViewAuditLog  = "canViewAuditLog"
)

// Admin is a back-office operator authenticating with email and password.
type Admin struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email         string             `bson:"email" json:"email"`
	PasswordHash  string             `bson:"password_hash" json:"-"`
	FirstName     string             `bson:"first_name" json:"firstName"`
	LastName      string             `bson:"last_name" json:"lastName"`
	Role          string             `bson:"role" json:"role"`
	Permissions   AdminPermissions   `bson:"permissions" json:"permissions"`
	IsActive      bool               `bson:"is_active" json:"isActive"`
	LastLogin     *time.Time         `bson:"last_login,omitempty" json:"lastLogin,omitempty"`
	LoginAttempts int                `bson:"login_attempts" json:"-"`
	LockUntil     *time.Time         `bson:"lock_until,omitempty" json:"-"`
	Version       int64              `bson:"version" json:"-"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"-"`
}

type AdminPermissions struct {
	CanViewOrders    bool `bson:"can_view_orders" json:"canViewOrders"`
	CanEditOrders    bool `bson:"can_edit_orders" json:"canEditOrders"`
	CanDeleteOrders  bool `bson:"can_delete_orders" json:"canDeleteOrders"`
	CanViewCustomers bool `bson:"can_view_customers" json:"canViewCustomers"`
	CanEditCustomers bool `bson:"can_edit_customers" json:"canEditCustomers"`
	CanViewAnalytics bool `bson:"can_view_analytics" json:"canViewAnalytics"`
	CanManageAdmins  bool `bson:"can_manage_admins" json:"canManageAdmins"`
	CanViewAuditLog  bool `bson:"can_view_audit_log" json:"canViewAuditLog"`
}

// Has reports whether the named permission is granted.
func (p AdminPermissions) Has(perm string) bool {
	switch perm {
	case PermViewOrders:
		return p.CanViewOrders
	case PermEditOrders:
		return p.CanEditOrders
	case PermDeleteOrders:
		return p.CanDeleteOrders
	case PermViewCustomers:
		return p.CanViewCustomers
	case PermEditCustomers:
		return p.CanEditCustomers
	case PermViewAnalytics:
		return p.CanViewAnalytics
	case PermManageAdmins:
		return p.CanManageAdmins
	case PermViewAuditLog:
		return p.CanViewAuditLog
	default:
		return false
	}
}

// Granted lists the names of every granted permission.
func (p AdminPermissions) Granted() []string {
	all := []string{
		PermViewOrders, PermEditOrders, PermDeleteOrders, PermViewCustomers,
		PermEditCustomers, PermViewAnalytics, PermManageAdmins, PermViewAuditLog,
	}
	granted := make([]string, 0, len(all))
	for _, perm := range all {
		if p.Has(perm) {
			granted = append(granted, perm)
		}
	}
	return granted
}

// FullPermissions grants everything; used for the bootstrap admin.
func FullPermissions() AdminPermissions {
	return AdminPermissions{
		CanViewOrders:    true,
		CanEditOrders:    true,
		CanDeleteOrders:  true,
		CanViewCustomers: true,
		CanEditCustomers: true,
		CanViewAnalytics: true,
		CanManageAdmins:  true,
		CanViewAuditLog:  true,
	}
}

// IsLocked reports whether a password lock is in force at now.
func (a *Admin) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// AdminClaims are carried in the admin session JWT.
type AdminClaims struct {
	AdminID     string   `json:"admin_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}
