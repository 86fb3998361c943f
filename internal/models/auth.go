package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried by externally issued tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleAccountant UserRole = "ACCOUNTANT"
)

// JWTClaims represents the JWT payload for access tokens. BranchID scopes every ledger call.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	BranchID string   `json:"branch_id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
