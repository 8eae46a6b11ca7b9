package auth

import (
	"fmt"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const adminTokenIssuer = "dinar-exchange-admin"

// TokenManager signs and verifies admin session JWTs
type TokenManager struct {
	secret string
	expiry time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry is the lifetime of issued tokens
func (tm *TokenManager) Expiry() time.Duration {
	return tm.expiry
}

// GenerateAdminToken creates an HS256 token carrying the admin's role and
// granted permissions. Permissions are re-checked against the store on
// every request, so the claims are informational.
func (tm *TokenManager) GenerateAdminToken(admin *models.Admin) (string, error) {
	now := tm.now()

	claims := &models.AdminClaims{
		AdminID:     admin.ID.Hex(),
		Email:       admin.Email,
		Role:        admin.Role,
		Permissions: admin.Permissions.Granted(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    adminTokenIssuer,
			Subject:   admin.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	claims := &models.AdminClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	},
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.AdminID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
