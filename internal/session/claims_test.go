package session

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenWithPayload(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestDecodeClaims(t *testing.T) {
	token := tokenWithPayload(`{"sub":"user-1","email":"a@example.com","name":"Ada","scope":"openid profile","exp":1700000000}`)

	claims := DecodeClaims(token)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, []string{"openid", "profile"}, claims.Scopes)
	assert.Equal(t, float64(1700000000), claims.Raw["exp"])
}

func TestDecodeClaims_ScopesArray(t *testing.T) {
	claims := DecodeClaims(tokenWithPayload(`{"sub":"u","scopes":["user:profile","user:inference"],"scope":"ignored"}`))
	require.NotNil(t, claims)
	assert.Equal(t, []string{"user:profile", "user:inference"}, claims.Scopes)
}

func TestDecodeClaims_PaddedSegment(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte(`{"sub":"pad"}`))
	claims := DecodeClaims("h." + padded + ".s")
	require.NotNil(t, claims)
	assert.Equal(t, "pad", claims.Subject)
}

func TestDecodeClaims_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"opaque", "not-a-jwt"},
		{"two segments", "a.b"},
		{"four segments", "a.b.c.d"},
		{"bad base64", "a.!!!.c"},
		{"not json", "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c"},
		{"json array", tokenWithPayload(`["sub"]`)},
		{"json null", tokenWithPayload(`null`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, DecodeClaims(tt.token))
		})
	}
}
