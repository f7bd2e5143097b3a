package utils

import (
	"net"
	"net/http"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PlaceholderPrefix marks client-side IDs that were never persisted.
const PlaceholderPrefix = "temp-"

// NewID returns a URL-safe public identifier.
func NewID() (string, error) {
	return gonanoid.New()
}

// NewPlaceholderID returns an ID for a record that only exists optimistically.
func NewPlaceholderID() string {
	id, err := gonanoid.New()
	if err != nil {
		return PlaceholderPrefix + "pending"
	}
	return PlaceholderPrefix + id
}

// SessionFromClaims extracts the session (jti) and user (sub) IDs from
// validated token claims.
func SessionFromClaims(claims interface{}) (sessionID, userID string, ok bool) {
	validated, isValidated := claims.(*validator.ValidatedClaims)
	if !isValidated || validated == nil {
		return "", "", false
	}
	sessionID = validated.RegisteredClaims.ID
	userID = validated.RegisteredClaims.Subject
	if sessionID == "" || userID == "" {
		return "", "", false
	}
	return sessionID, userID, true
}

// ClientIP returns the caller's IP without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
