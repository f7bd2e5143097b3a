package client

import (
	"context"
	"time"

	"github.com/andrewpaige1/flashd-api/models"
)

const procSession = "auth.getSession"

// SessionStaleTime is how long the session is served from cache.
const SessionStaleTime = 5 * time.Minute

// Session is the signed-in user and session, both nil when anonymous.
type Session struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

// SignUpInput registers an account.
type SignUpInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

// ProfileInput changes the non-nil profile fields.
type ProfileInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type authResult struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

// Auth are the session hooks.
type Auth struct {
	c *Client
}

// Auth returns the session hooks bound to c's cache.
func (c *Client) Auth() *Auth {
	return &Auth{c: c}
}

// SessionKey is the cache key of the current session.
func SessionKey() Key { return KeyFor(procSession, nil) }

// Session returns the current session. A failed lookup is not retried.
func (a *Auth) Session(ctx context.Context) (Session, error) {
	return cachedQuery[Session](ctx, a.c.cache, a.c.QueryOnce, SessionKey(), SessionStaleTime, procSession, nil)
}

// SignIn opens a session. Every cached query is refetched afterwards.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	var out authResult
	in := map[string]string{"email": email, "password": password}
	if err := a.c.Mutate(ctx, "auth.signIn", in, &out); err != nil {
		return nil, err
	}
	a.c.cache.InvalidateAll()
	return out.User, nil
}

// SignUp registers and signs in. Every cached query is refetched afterwards.
func (a *Auth) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	var out authResult
	if err := a.c.Mutate(ctx, "auth.signUp", in, &out); err != nil {
		return nil, err
	}
	a.c.cache.InvalidateAll()
	return out.User, nil
}

// SignOut ends the session and drops the whole cache.
func (a *Auth) SignOut(ctx context.Context) error {
	err := a.c.Mutate(ctx, "auth.signOut", nil, nil)
	a.c.cache.Clear()
	return err
}

// UpdateProfile changes the profile and refetches the session.
func (a *Auth) UpdateProfile(ctx context.Context, in ProfileInput) (*models.User, error) {
	var user models.User
	err := a.c.Mutate(ctx, "auth.updateProfile", in, &user)
	a.c.cache.Invalidate(SessionKey())
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteAccount removes the account and drops the whole cache.
func (a *Auth) DeleteAccount(ctx context.Context) error {
	err := a.c.Mutate(ctx, "auth.deleteAccount", nil, nil)
	if err == nil {
		a.c.cache.Clear()
	}
	return err
}
