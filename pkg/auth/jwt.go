package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles understood by the registry API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// Claims represents the JWT claims for the registry. Name is the display
// name recorded as actor on history entries.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name,omitempty"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the identity recorded on history entries: the display name
// when present, the user id otherwise.
func (c *Claims) Actor() string {
	if c.Name != "" {
		return c.Name
	}
	return c.UserID.String()
}

// GenerateToken creates a signed JWT for the given user and role.
func GenerateToken(secret, issuer string, userID uuid.UUID, name, role string, expiryHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiryHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	return claims, nil
}
