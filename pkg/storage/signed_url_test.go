package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("rcpt-1", "receipts/branch-1/rcpt-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "rcpt-1", parsed.ID)
	require.Equal(t, "receipts/branch-1/rcpt-1.pdf", parsed.Key)
	require.WithinDuration(t, expiresAt, parsed.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("rcpt-1", "receipts/rcpt-1.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	parsed, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "receipts/rcpt-1.pdf", parsed.Key)
}

func TestSignedURLSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("rcpt-1", "receipts/rcpt-1.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Parse("not-a-token", false)
	require.ErrorIs(t, err, ErrTokenMalformed)
}
