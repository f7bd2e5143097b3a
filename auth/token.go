package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"

	"github.com/andrewpaige1/flashd-api/models"
)

// Tokens signs session tokens and builds the validator that checks them.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokens creates a token helper for HS256 session tokens.
func NewTokens(secret, issuer, audience string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Issue signs a token bound to the session. The session ID becomes the jti.
func (t *Tokens) Issue(session models.Session, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   session.UserID,
		Audience:  jwt.ClaimStrings{t.audience},
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        session.ID,
	})

	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, nil
}

// Validator returns a validator that accepts tokens produced by Issue.
func (t *Tokens) Validator() (*validator.Validator, error) {
	keyFunc := func(context.Context) (interface{}, error) {
		return t.secret, nil
	}

	v, err := validator.New(keyFunc, validator.HS256, t.issuer, []string{t.audience})
	if err != nil {
		return nil, fmt.Errorf("failed to set up token validator: %w", err)
	}
	return v, nil
}
