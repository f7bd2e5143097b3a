package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/andrewpaige1/flashd-api/middleware"
	"github.com/andrewpaige1/flashd-api/rpc"
)

// AppScheme is the custom URL scheme of the mobile app, always allowed by CORS.
const AppScheme = "flashd://"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Origins []string
	Limiter *middleware.RateLimiter
	Logger  zerolog.Logger
	// TrustedProxies are the only peers whose forwarding headers set the
	// client IP used for rate limiting and session metadata.
	TrustedProxies []string
}

// RPC builds the procedure router with the auth and deck groups.
func (db *DBHandler) RPC() *rpc.Router {
	rt := rpc.NewRouter(middleware.Authenticated, rpc.WithEntitlement(middleware.Entitled))

	rt.Group("auth", map[string]rpc.Procedure{
		"getSession":    rpc.NewQuery(db.GetSession),
		"signUp":        rpc.NewMutation(db.SignUp),
		"signIn":        rpc.NewMutation(db.SignIn),
		"signOut":       rpc.NewMutation(db.SignOut),
		"updateProfile": rpc.NewMutation(db.UpdateProfile).Protect(),
		"deleteAccount": rpc.NewMutation(db.DeleteAccount).Protect(),
	})

	rt.Group("deck", map[string]rpc.Procedure{
		"getUserDecks": rpc.NewQuery(db.GetUserDecks).Protect(),
		"getDeck":      rpc.NewQuery(db.GetDeck).Protect(),
		"getDeckStats": rpc.NewQuery(db.GetDeckStats).Protect(),
		"createDeck":   rpc.NewMutation(db.CreateDeck).Protect(),
		"updateDeck":   rpc.NewMutation(db.UpdateDeck).Protect(),
		"deleteDeck":   rpc.NewMutation(db.DeleteDeck).Protect(),
		"createCard":   rpc.NewMutation(db.CreateCard).Protect(),
		"updateCard":   rpc.NewMutation(db.UpdateCard).Protect(),
		"deleteCard":   rpc.NewMutation(db.DeleteCard).Protect(),
		"reviewCard":   rpc.NewMutation(db.ReviewCard).Protect(),
	})

	return rt
}

// NewRouter wires the HTTP surface: /trpc/*, /api/auth/* and /healthz.
func NewRouter(db *DBHandler, opts RouterOptions) (http.Handler, error) {
	sessions, err := middleware.SessionMiddleware(db.Auth)
	if err != nil {
		return nil, err
	}

	proxies, err := middleware.ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP(proxies))
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(sessions)

	r.Get("/healthz", db.Health)
	r.Mount("/api/auth", db.AuthRoutes(opts.Limiter))
	r.Handle("/trpc/*", http.StripPrefix("/trpc/", db.RPC()))

	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return strings.HasPrefix(origin, AppScheme) || slices.Contains(opts.Origins, origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(r), nil
}

// Health reports whether the database answers.
func (db *DBHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
