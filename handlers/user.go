package handlers

import (
	"context"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/middleware"
	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/rpc"
)

// SessionPayload is the current session as seen by the client. Both fields
// are null for anonymous callers.
type SessionPayload struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

// AuthPayload is returned by sign-up and sign-in.
type AuthPayload struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

func currentSession(ctx context.Context) SessionPayload {
	session, ok := middleware.SessionFrom(ctx)
	if !ok {
		return SessionPayload{}
	}
	user := session.User
	return SessionPayload{User: &user, Session: session}
}

// GetSession returns the caller's session, if any.
func (db *DBHandler) GetSession(ctx context.Context, _ struct{}) (SessionPayload, error) {
	return currentSession(ctx), nil
}

// SignUp registers an account and signs it in.
func (db *DBHandler) SignUp(ctx context.Context, in auth.SignUpInput) (AuthPayload, error) {
	result, err := db.Auth.SignUp(ctx, in, clientInfo(ctx))
	if err != nil {
		return AuthPayload{}, mapAuthError(err)
	}
	rpc.SetCookie(ctx, db.Auth.SessionCookie(result.Token, result.Session.ExpiresAt))
	return AuthPayload{Success: true, User: &result.User}, nil
}

// SignIn opens a session for valid credentials.
func (db *DBHandler) SignIn(ctx context.Context, in auth.SignInInput) (AuthPayload, error) {
	result, err := db.Auth.SignIn(ctx, in, clientInfo(ctx))
	if err != nil {
		return AuthPayload{}, mapAuthError(err)
	}
	rpc.SetCookie(ctx, db.Auth.SessionCookie(result.Token, result.Session.ExpiresAt))
	return AuthPayload{Success: true, User: &result.User}, nil
}

// SignOut ends the current session. Anonymous callers succeed too.
func (db *DBHandler) SignOut(ctx context.Context, _ struct{}) (Success, error) {
	if session, ok := middleware.SessionFrom(ctx); ok {
		if err := db.Auth.SignOut(ctx, session.ID); err != nil {
			return Success{}, err
		}
	}
	rpc.SetCookie(ctx, db.Auth.ClearCookie())
	return Success{Success: true}, nil
}

// UpdateProfile changes the caller's name and/or email.
func (db *DBHandler) UpdateProfile(ctx context.Context, in auth.ProfileInput) (*models.User, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := db.Auth.UpdateProfile(ctx, user.ID, in)
	if err != nil {
		return nil, mapAuthError(err)
	}
	return updated, nil
}

// DeleteAccount removes the caller and everything it owns.
func (db *DBHandler) DeleteAccount(ctx context.Context, _ struct{}) (Success, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return Success{}, err
	}
	if err := db.Auth.DeleteAccount(ctx, user.ID); err != nil {
		return Success{}, mapAuthError(err)
	}
	rpc.SetCookie(ctx, db.Auth.ClearCookie())
	return Success{Success: true}, nil
}
