package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/middleware"
	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/rpc"
	"github.com/andrewpaige1/flashd-api/utils"
)

// DBHandler serves every procedure from one database handle.
type DBHandler struct {
	*gorm.DB
	Auth *auth.Service
}

// Success is the payload of mutations that return nothing else.
type Success struct {
	Success bool `json:"success"`
}

func currentUser(ctx context.Context) (*models.User, error) {
	user, ok := middleware.UserFrom(ctx)
	if !ok {
		return nil, rpc.Unauthorized("Not authenticated")
	}
	return user, nil
}

func clientInfo(ctx context.Context) auth.ClientInfo {
	r, ok := rpc.Request(ctx)
	if !ok {
		return auth.ClientInfo{}
	}
	return auth.ClientInfo{IPAddress: utils.ClientIP(r), UserAgent: r.UserAgent()}
}

// mapAuthError turns identity errors into caller-facing rpc errors.
func mapAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrEmailTaken):
		return rpc.Validation([]rpc.FieldError{{Field: "email", Message: "Email is already registered"}})
	case errors.Is(err, models.ErrInvalidCredentials):
		return rpc.Unauthorized("Invalid credentials")
	case errors.Is(err, models.ErrNotFound):
		return rpc.NotFound("User")
	default:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes an identity endpoint error as {code, message}.
func writeError(w http.ResponseWriter, err error) {
	rpcErr := rpc.AsError(mapAuthError(err))
	status := rpcErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Auth endpoint failed")
	}
	body := map[string]any{
		"code":    rpcErr.Code,
		"message": rpcErr.Message,
	}
	if len(rpcErr.FieldErrors) > 0 {
		body["fieldErrors"] = rpcErr.FieldErrors
	}
	writeJSON(w, status, body)
}
