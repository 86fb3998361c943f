package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
	appErrors "github.com/noah-isme/sma-fee-ledger/pkg/errors"
)

func signToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "auth"})
	signed := signToken(t, "secret", models.JWTClaims{
		UserID:   "user-1",
		Role:     models.RoleAccountant,
		BranchID: "br-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "br-1", claims.BranchID)
	assert.Equal(t, models.RoleAccountant, claims.Role)
}

func TestTokenServiceRejectsMissingBranch(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	signed := signToken(t, "secret", models.JWTClaims{
		UserID:           "user-1",
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenServiceRejectsWrongSecretAndIssuer(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "auth"})
	claims := models.JWTClaims{
		UserID:           "user-1",
		BranchID:         "br-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "other", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}

	_, err := svc.ValidateToken(signToken(t, "secret", claims))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	claims.Issuer = "auth"
	_, err = svc.ValidateToken(signToken(t, "wrong", claims))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
