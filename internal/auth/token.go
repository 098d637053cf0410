package auth

import (
	"crypto/subtle"
	"strings"
)

// LocalsKey is where the pre-upgrade middleware leaves the presented token.
const LocalsKey = "auth_token"

// Check reports whether token exactly matches the shared secret. An empty
// secret accepts nothing.
func Check(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(token)) == 1
}

// TokenFromRequest prefers the bearer header and falls back to the query value.
func TokenFromRequest(header, query string) string {
	if token := bearerFromHeader(header); token != "" {
		return token
	}
	return strings.TrimSpace(query)
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
