package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/testutil"
)

type captureHandler struct {
	called bool
	ctx    context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func newSessionFixture(t *testing.T) (*auth.Service, func(http.Handler) http.Handler, *auth.Result) {
	t.Helper()
	svc := auth.NewService(testutil.NewDB(t), auth.Options{Secret: "s3cret", BaseURL: "http://test"})
	mw, err := SessionMiddleware(svc)
	require.NoError(t, err)

	res, err := svc.SignUp(context.Background(), auth.SignUpInput{Email: "a@b.co", Password: "long-enough"}, auth.ClientInfo{})
	require.NoError(t, err)
	return svc, mw, res
}

func TestSessionMiddleware_Cookie(t *testing.T) {
	_, mw, res := newSessionFixture(t)
	h := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/trpc/deck.getUserDecks", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: res.Token})
	mw(h).ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, h.called)
	user, ok := UserFrom(h.ctx)
	require.True(t, ok)
	assert.Equal(t, res.User.ID, user.ID)
	assert.True(t, Authenticated(h.ctx))
}

func TestSessionMiddleware_BearerHeader(t *testing.T) {
	_, mw, res := newSessionFixture(t)
	h := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	mw(h).ServeHTTP(httptest.NewRecorder(), req)

	session, ok := SessionFrom(h.ctx)
	require.True(t, ok)
	assert.Equal(t, res.Session.ID, session.ID)
}

func TestSessionMiddleware_AnonymousPassesThrough(t *testing.T) {
	_, mw, _ := newSessionFixture(t)

	cases := map[string]func(*http.Request){
		"no token":      func(*http.Request) {},
		"garbage token": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "not-a-jwt"}) },
		"bad header":    func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			h := &captureHandler{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(req)
			mw(h).ServeHTTP(httptest.NewRecorder(), req)

			require.True(t, h.called)
			assert.False(t, Authenticated(h.ctx))
		})
	}
}

func TestSessionMiddleware_SignedOutSessionIsAnonymous(t *testing.T) {
	svc, mw, res := newSessionFixture(t)
	require.NoError(t, svc.SignOut(context.Background(), res.Session.ID))
	h := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: res.Token})
	mw(h).ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, h.called)
	assert.False(t, Authenticated(h.ctx))
}
