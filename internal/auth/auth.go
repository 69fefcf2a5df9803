// Package auth verifies HS256 bearer tokens and carries the caller's user ID
// through request contexts.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Static errors for token verification.
var (
	// ErrMalformedToken is returned when a token is not three base64url parts.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrUnsupportedAlg is returned for any algorithm other than HS256.
	ErrUnsupportedAlg = errors.New("auth: unsupported algorithm")
	// ErrInvalidSignature is returned when the signature does not match.
	ErrInvalidSignature = errors.New("auth: invalid signature")
	// ErrTokenExpired is returned when exp is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrMissingSubject is returned when the token has no sub claim.
	ErrMissingSubject = errors.New("auth: token has no subject")
)

// Claims are the token fields the service reads.
type Claims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Verifier resolves a bearer token to its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// compile-time interface check
var _ Verifier = (*HS256)(nil)

// HS256 signs and verifies HMAC-SHA256 JWTs with a shared secret.
type HS256 struct {
	secret []byte
	now    func() time.Time
}

// NewHS256 creates an HS256 verifier.
func NewHS256(secret string) *HS256 {
	return &HS256{secret: []byte(secret), now: time.Now}
}

// Sign returns a compact JWT for claims.
func (h *HS256) Sign(claims Claims) (string, error) {
	hdr, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("auth: marshal header: %w", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	data := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(payload)
	return data + "." + h.sign(data), nil
}

// Verify implements Verifier.
func (h *HS256) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}

	var hdr header
	if err := decodePart(parts[0], &hdr); err != nil {
		return Claims{}, err
	}
	if hdr.Alg != "HS256" {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnsupportedAlg, hdr.Alg)
	}

	expected := h.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Claims{}, ErrInvalidSignature
	}

	var claims Claims
	if err := decodePart(parts[1], &claims); err != nil {
		return Claims{}, err
	}
	if claims.ExpiresAt != 0 && h.now().Unix() > claims.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrMissingSubject
	}
	return claims, nil
}

func (h *HS256) sign(data string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func decodePart(part string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(part)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return nil
}

type ctxKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user ID, or "" when there is none.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
