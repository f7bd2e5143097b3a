package middleware

import (
	"context"
	"errors"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/rs/zerolog/hlog"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/utils"
)

type contextKey string

const sessionKey = contextKey("session")

// WithSession attaches the session (and its preloaded user) to ctx.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFrom returns the session attached by SessionMiddleware.
func SessionFrom(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionKey).(*models.Session)
	return session, ok && session != nil
}

// UserFrom returns the signed-in user attached by SessionMiddleware.
func UserFrom(ctx context.Context) (*models.User, bool) {
	session, ok := SessionFrom(ctx)
	if !ok {
		return nil, false
	}
	return &session.User, true
}

// Authenticated reports whether ctx carries a signed-in user.
func Authenticated(ctx context.Context) bool {
	_, ok := SessionFrom(ctx)
	return ok
}

// Entitled reports whether ctx carries a signed-in user subscribed to at
// least tier.
func Entitled(ctx context.Context, tier string) bool {
	user, ok := UserFrom(ctx)
	return ok && user.HasTier(tier)
}

// SessionMiddleware resolves the session token from the cookie or the
// Authorization header. Requests without a valid, live session pass through
// anonymously; protected procedures reject them later.
func SessionMiddleware(svc *auth.Service) (func(http.Handler) http.Handler, error) {
	v, err := svc.Tokens().Validator()
	if err != nil {
		return nil, err
	}

	extract := jwtmiddleware.MultiTokenExtractor(
		jwtmiddleware.CookieTokenExtractor(auth.CookieName),
		jwtmiddleware.AuthHeaderTokenExtractor,
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := hlog.FromRequest(r)

			token, err := extract(r)
			if err != nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Msg("Rejected session token")
				next.ServeHTTP(w, r)
				return
			}

			sessionID, userID, ok := utils.SessionFromClaims(claims)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			session, err := svc.Lookup(r.Context(), sessionID, userID)
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrSessionExpired) {
					logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load session")
				}
				next.ServeHTTP(w, r)
				return
			}

			fresh, err := svc.Refresh(r.Context(), session)
			if err != nil {
				logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to refresh session")
			} else if fresh != "" {
				http.SetCookie(w, svc.SessionCookie(fresh, session.ExpiresAt))
			}

			ctx := context.WithValue(r.Context(), jwtmiddleware.ContextKey{}, claims)
			ctx = WithSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
