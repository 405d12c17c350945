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
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// SignedURLSigner creates and validates signed feed tokens.
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
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token binding an owner to a stored path.
func (s *SignedURLSigner) Generate(owner, relPath string) (string, time.Time, error) {
	if owner == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("owner and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedOwner := base64.RawURLEncoding.EncodeToString([]byte(owner))
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{encodedOwner, ts, encodedPath, s.sign(encodedOwner, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded owner and path.
func (s *SignedURLSigner) Parse(token string) (owner, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrInvalidToken
	}
	encodedOwner, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(encodedOwner, ts, encodedPath)), []byte(signature)) {
		return "", "", time.Time{}, ErrInvalidToken
	}
	rawOwner, err := base64.RawURLEncoding.DecodeString(encodedOwner)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	expiresAt = time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrTokenExpired
	}
	return string(rawOwner), string(rawPath), expiresAt, nil
}

func (s *SignedURLSigner) sign(owner, ts, path string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(owner + "|" + ts + "|" + path))
	return hex.EncodeToString(mac.Sum(nil))
}
