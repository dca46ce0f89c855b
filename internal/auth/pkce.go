package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// stateBytes is the number of random bytes behind the CSRF state token.
	stateBytes = 16

	// ChallengeMethod is the only PKCE method this client sends.
	ChallengeMethod = "S256"
)

// PKCEPair is a code verifier and its derived S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewVerifier returns a fresh PKCE code verifier: 32 random bytes,
// base64url-encoded without padding (43 characters).
// It panics if the system CSPRNG fails.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// ChallengeFor returns BASE64URL(SHA256(verifier)) without padding.
func ChallengeFor(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewPKCEPair generates a verifier and its challenge.
func NewPKCEPair() PKCEPair {
	verifier := NewVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: ChallengeFor(verifier),
	}
}

// VerifyChallenge reports whether challenge was derived from verifier.
func VerifyChallenge(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(ChallengeFor(verifier)), []byte(challenge)) == 1
}

// NewState returns a random anti-CSRF state token.
// It panics if the system CSPRNG fails.
func NewState() string {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("auth: reading random state: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
