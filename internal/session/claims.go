package session

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is a display-only projection of a JWT-shaped access token.
//
// The token signature is NOT verified. Claims may be forged by anyone who can
// hand the client a token, so they must never drive authorization decisions;
// the resource server is the only authority on what a token grants.
type Claims struct {
	Subject string
	Email   string
	Name    string
	// Scopes lists the authorized application scopes, from either a "scopes"
	// array or a space-delimited "scope" string.
	Scopes []string
	// Raw holds every claim as decoded.
	Raw map[string]any
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims decodes the middle segment of a three-part dot-delimited token
// as base64url JSON. It returns nil when the token has the wrong number of
// segments, the segment is not base64url, or it does not hold a JSON object.
// A nil result means "claims unavailable", not "unauthenticated".
func DecodeClaims(token string) *Claims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return nil
	}

	c := &Claims{
		Subject: stringClaim(raw, "sub"),
		Email:   stringClaim(raw, "email"),
		Name:    stringClaim(raw, "name"),
		Raw:     raw,
	}

	if list, ok := raw["scopes"].([]any); ok {
		for _, s := range list {
			if str, ok := s.(string); ok {
				c.Scopes = append(c.Scopes, str)
			}
		}
	}
	if len(c.Scopes) == 0 {
		c.Scopes = strings.Fields(stringClaim(raw, "scope"))
	}

	return c
}

func stringClaim(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
