package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Static errors for the Authorization header.
var (
	// ErrMissingHeader is returned when no Authorization header is sent.
	ErrMissingHeader = errors.New("auth: missing authorization header")
	// ErrNotBearer is returned when the header is not a bearer token.
	ErrNotBearer = errors.New("auth: authorization header is not a bearer token")
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingHeader
	}
	scheme, token, ok := strings.Cut(h, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrNotBearer
	}
	return token, nil
}

// Middleware verifies the bearer token and stores its subject as the user
// ID. Requests without a valid token are passed to deny.
func Middleware(v Verifier, deny func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				deny(w, err)
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				deny(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}
