package db

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/energizer-project/blazer/internal/session"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("token signature mismatch")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenSigner issues and verifies session tokens of the form
// base64url(account id | expiry) "." base64url(HMAC-SHA256).
type TokenSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenSigner creates a signer. A non-positive ttl uses DefaultTokenTTL.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSigner{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for id that expires after the signer's ttl.
func (s *TokenSigner) Sign(id session.AccountID) string {
	var payload [16]byte
	binary.BigEndian.PutUint64(payload[0:8], uint64(id))
	binary.BigEndian.PutUint64(payload[8:16], uint64(s.now().Add(s.ttl).Unix()))

	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload[:]) + "." + enc.EncodeToString(s.mac(payload[:]))
}

// Verify returns the account id a token was issued for.
func (s *TokenSigner) Verify(token string) (session.AccountID, error) {
	enc := base64.RawURLEncoding
	rawPayload, rawSig, ok := strings.Cut(token, ".")
	if !ok {
		return 0, ErrTokenMalformed
	}
	payload, err := enc.DecodeString(rawPayload)
	if err != nil || len(payload) != 16 {
		return 0, ErrTokenMalformed
	}
	sig, err := enc.DecodeString(rawSig)
	if err != nil {
		return 0, ErrTokenMalformed
	}
	if !hmac.Equal(sig, s.mac(payload)) {
		return 0, ErrTokenSignature
	}

	expires := time.Unix(int64(binary.BigEndian.Uint64(payload[8:16])), 0)
	if !s.now().Before(expires) {
		return 0, ErrTokenExpired
	}
	return session.AccountID(binary.BigEndian.Uint64(payload[0:8])), nil
}

func (s *TokenSigner) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	return h.Sum(nil)
}
