package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256_RoundTrip(t *testing.T) {
	h := NewHS256("secret")

	token, err := h.Sign(Claims{Subject: "user-1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := h.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestHS256_Verify_Errors(t *testing.T) {
	h := NewHS256("secret")
	valid, err := h.Sign(Claims{Subject: "user-1"})
	require.NoError(t, err)

	other, err := NewHS256("other").Sign(Claims{Subject: "user-1"})
	require.NoError(t, err)

	expired, err := h.Sign(Claims{Subject: "user-1", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, err)

	noSub, err := h.Sign(Claims{})
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	// {"alg":"none","typ":"JWT"}
	noneAlg := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "." + parts[2]

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"two parts", "a.b", ErrMalformedToken},
		{"bad base64", "!!.##.$$", ErrMalformedToken},
		{"wrong secret", other, ErrInvalidSignature},
		{"tampered payload", parts[0] + "." + parts[1] + "x." + parts[2], ErrInvalidSignature},
		{"alg none", noneAlg, ErrUnsupportedAlg},
		{"expired", expired, ErrTokenExpired},
		{"no subject", noSub, ErrMissingSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUserID(t *testing.T) {
	assert.Equal(t, "", UserID(context.Background()))
	assert.Equal(t, "u-7", UserID(WithUserID(context.Background(), "u-7")))
}
