package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Name string `json:"name"`
}

type authKey struct{}

func newTestRouter() *Router {
	rt := NewRouter(func(ctx context.Context) bool {
		ok, _ := ctx.Value(authKey{}).(bool)
		return ok
	})

	rt.Handle("test.echo", NewQuery(func(ctx context.Context, in echoInput) (map[string]string, error) {
		return map[string]string{"hello": in.Name}, nil
	}))
	rt.Handle("test.create", NewMutation(func(ctx context.Context, in echoInput) (echoInput, error) {
		var v Validator
		v.Length(in.Name, "name", 1, 5)
		if err := v.Err(); err != nil {
			return echoInput{}, err
		}
		SetCookie(ctx, &http.Cookie{Name: "made", Value: in.Name})
		return in, nil
	}))
	rt.Handle("test.secret", NewQuery(func(ctx context.Context, _ struct{}) (string, error) {
		return "secret", nil
	}).Protect())
	rt.Handle("test.boom", NewQuery(func(ctx context.Context, _ struct{}) (any, error) {
		return nil, errors.New("database exploded")
	}))
	rt.Handle("test.missing", NewQuery(func(ctx context.Context, _ struct{}) (any, error) {
		return nil, NotFound("Deck")
	}))
	return rt
}

func serve(t *testing.T, rt *Router, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	http.StripPrefix("/trpc/", rt).ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func errorCode(body map[string]any) string {
	return body["error"].(map[string]any)["data"].(map[string]any)["code"].(string)
}

func TestRouter_Query(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/trpc/test.echo?input="+url.QueryEscape(`{"name":"ada"}`), nil)

	rr := serve(t, rt, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	data := body["result"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "ada", data["hello"])
}

func TestRouter_QueryWithoutInput(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/trpc/test.echo", nil)

	rr := serve(t, rt, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_MutationSetsCookie(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/trpc/test.create", strings.NewReader(`{"name":"bob"}`))

	rr := serve(t, rt, req)

	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "made", cookies[0].Name)
	assert.Equal(t, "bob", cookies[0].Value)
}

func TestRouter_ValidationError(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/trpc/test.create", strings.NewReader(`{"name":""}`))

	rr := serve(t, rt, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "BAD_REQUEST", errorCode(body))
	fieldErrors := body["error"].(map[string]any)["data"].(map[string]any)["fieldErrors"].([]any)
	require.Len(t, fieldErrors, 1)
	assert.Equal(t, "name", fieldErrors[0].(map[string]any)["field"])
	assert.Empty(t, rr.Result().Cookies())
}

func TestRouter_WrongMethodForKind(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/trpc/test.echo", nil)

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "METHOD_NOT_SUPPORTED", errorCode(decode(t, rr)))
}

func TestRouter_UnsupportedMethod(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodDelete, "/trpc/test.echo", nil)

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouter_UnknownProcedure(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/trpc/test.nope", nil)

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(decode(t, rr)))
}

func TestRouter_MalformedInput(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/trpc/test.create", strings.NewReader(`{"name":`))

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "PARSE_ERROR", errorCode(decode(t, rr)))
}

func TestRouter_InputOfWrongShape(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/trpc/test.create", strings.NewReader(`{"name":42}`))

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(decode(t, rr)))
}

func TestRouter_ProtectedRequiresAuth(t *testing.T) {
	rt := newTestRouter()

	rr := serve(t, rt, httptest.NewRequest(http.MethodGet, "/trpc/test.secret", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(decode(t, rr)))

	req := httptest.NewRequest(http.MethodGet, "/trpc/test.secret", nil)
	req = req.WithContext(context.WithValue(req.Context(), authKey{}, true))
	rr = serve(t, rt, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

type tierKey struct{}

func TestRouter_RequireTier(t *testing.T) {
	order := map[string]int{"FREE": 0, "PLUS": 1, "PRO": 2}
	rt := NewRouter(
		func(ctx context.Context) bool { return ctx.Value(tierKey{}) != nil },
		WithEntitlement(func(ctx context.Context, tier string) bool {
			have, _ := ctx.Value(tierKey{}).(string)
			return order[have] >= order[tier]
		}),
	)
	rt.Handle("test.premium", NewQuery(func(ctx context.Context, _ struct{}) (string, error) {
		return "premium", nil
	}).RequireTier("PLUS"))

	callAs := func(tier string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/trpc/test.premium", nil)
		if tier != "" {
			req = req.WithContext(context.WithValue(req.Context(), tierKey{}, tier))
		}
		return serve(t, rt, req)
	}

	rr := callAs("")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = callAs("FREE")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
	assert.Equal(t, "This feature requires PLUS subscription", body["error"].(map[string]any)["message"])

	assert.Equal(t, http.StatusOK, callAs("PLUS").Code)
	assert.Equal(t, http.StatusOK, callAs("PRO").Code)
}

func TestRouter_RequireTierWithoutEntitlementForbids(t *testing.T) {
	rt := newTestRouter()
	rt.Handle("test.premium", NewQuery(func(ctx context.Context, _ struct{}) (string, error) {
		return "premium", nil
	}).RequireTier("PLUS"))

	req := httptest.NewRequest(http.MethodGet, "/trpc/test.premium", nil)
	req = req.WithContext(context.WithValue(req.Context(), authKey{}, true))
	rr := serve(t, rt, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_InternalErrorHidesDetail(t *testing.T) {
	rt := newTestRouter()

	rr := serve(t, rt, httptest.NewRequest(http.MethodGet, "/trpc/test.boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errorCode(body))
	assert.NotContains(t, rr.Body.String(), "exploded")
}

func TestRouter_Batch(t *testing.T) {
	rt := newTestRouter()
	input := url.QueryEscape(`{"0":{"name":"x"},"1":{}}`)
	req := httptest.NewRequest(http.MethodGet, "/trpc/test.echo,test.missing?batch=1&input="+input, nil)

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusMultiStatus, rr.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0]["result"].(map[string]any)["data"].(map[string]any)["hello"])
	assert.Equal(t, "NOT_FOUND", errorCode(results[1]))
}

func TestRouter_BatchAllSucceed(t *testing.T) {
	rt := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/trpc/test.echo,test.echo?batch=1", nil)

	rr := serve(t, rt, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_DuplicateRegistrationPanics(t *testing.T) {
	rt := newTestRouter()

	assert.Panics(t, func() {
		rt.Handle("test.echo", NewQuery(func(ctx context.Context, _ struct{}) (any, error) { return nil, nil }))
	})
}

func TestValidator_Email(t *testing.T) {
	var v Validator
	v.Email("someone@example.com", "email")
	assert.NoError(t, v.Err())

	v.Email("Someone <someone@example.com>", "email")
	v.Email("not-an-email", "email")
	err := v.Err()
	require.Error(t, err)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Len(t, rpcErr.FieldErrors, 2)
}
