package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/middleware"
	"github.com/andrewpaige1/flashd-api/rpc"
	"github.com/andrewpaige1/flashd-api/utils"
)

// AuthRoutes serves the identity endpoints mounted under /api/auth.
func (db *DBHandler) AuthRoutes(limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Post("/sign-up/email", db.handleSignUp)
	r.Post("/sign-in/email", db.handleSignIn)
	r.Post("/sign-out", db.handleSignOut)
	r.Get("/get-session", db.handleGetSession)
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    string(rpc.CodeNotFound),
			"message": "Not found",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"code":    string(rpc.CodeMethodNotSupported),
			"message": "Method not allowed",
		})
	})
	return r
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v); err != nil {
		return rpc.Wrap(rpc.CodeParseError, "Invalid request body", err)
	}
	return nil
}

func requestClient(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{IPAddress: utils.ClientIP(r), UserAgent: r.UserAgent()}
}

func (db *DBHandler) writeSession(w http.ResponseWriter, result *auth.Result) {
	http.SetCookie(w, db.Auth.SessionCookie(result.Token, result.Session.ExpiresAt))
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  result.User,
	})
}

func (db *DBHandler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in auth.SignUpInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}

	result, err := db.Auth.SignUp(r.Context(), in, requestClient(r))
	if err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Sign-up rejected")
		writeError(w, err)
		return
	}
	db.writeSession(w, result)
}

func (db *DBHandler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in auth.SignInInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}

	result, err := db.Auth.SignIn(r.Context(), in, requestClient(r))
	if err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Sign-in rejected")
		writeError(w, err)
		return
	}
	db.writeSession(w, result)
}

func (db *DBHandler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if session, ok := middleware.SessionFrom(r.Context()); ok {
		if err := db.Auth.SignOut(r.Context(), session.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	http.SetCookie(w, db.Auth.ClearCookie())
	writeJSON(w, http.StatusOK, Success{Success: true})
}

func (db *DBHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	payload := currentSession(r.Context())
	if payload.Session == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
