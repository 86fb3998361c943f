package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("malformed download token")
	ErrTokenSignature = errors.New("invalid download token signature")
	ErrTokenExpired   = errors.New("download token expired")
)

// SignedToken is the decoded content of a download token.
type SignedToken struct {
	ID        string
	Key       string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates HMAC signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long generated tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration { return s.ttl }

// Generate returns a token of the form id.expiry.key.signature.
func (s *SignedURLSigner) Generate(id, key string) (string, time.Time, error) {
	if id == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("id and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	token := strings.Join([]string{id, ts, encodedKey, s.sign(id, ts, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token. allowExpired skips the expiry check for cleanup routines.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (SignedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] == "" {
		return SignedToken{}, ErrTokenMalformed
	}
	id, ts, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(id, ts, encodedKey)), []byte(signature)) {
		return SignedToken{}, ErrTokenSignature
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return SignedToken{}, ErrTokenMalformed
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return SignedToken{}, ErrTokenMalformed
	}
	expiresAt := time.Unix(expUnix, 0)
	if !allowExpired && s.now().After(expiresAt) {
		return SignedToken{}, ErrTokenExpired
	}
	return SignedToken{ID: id, Key: string(rawKey), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(id, ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(id + "|" + ts + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
