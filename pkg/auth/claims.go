package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role values accepted in access tokens.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TenantID uuid.UUID
	Subject  string
	Role     string
	JTI      string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// ValidRole reports whether the role is one this API understands.
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleAdmin
}
