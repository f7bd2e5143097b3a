// Package rpc serves named query and mutation procedures over HTTP using a
// tRPC-compatible envelope.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"
)

// Kind distinguishes read-only queries from mutations.
type Kind int

const (
	Query Kind = iota
	Mutation
)

func (k Kind) String() string {
	if k == Mutation {
		return "mutation"
	}
	return "query"
}

// Handler runs a procedure against its raw JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Procedure is a registered endpoint.
type Procedure struct {
	Kind      Kind
	Protected bool
	// Tier is the minimum subscription tier, empty for none.
	Tier    string
	Handler Handler
}

// NewQuery adapts a typed function into a query procedure.
func NewQuery[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Procedure {
	return Procedure{Kind: Query, Handler: typed(fn)}
}

// NewMutation adapts a typed function into a mutation procedure.
func NewMutation[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Procedure {
	return Procedure{Kind: Mutation, Handler: typed(fn)}
}

// Protect marks the procedure as requiring an authenticated caller.
func (p Procedure) Protect() Procedure {
	p.Protected = true
	return p
}

// RequireTier marks the procedure as requiring a signed-in caller whose
// subscription is at least tier.
func (p Procedure) RequireTier(tier string) Procedure {
	p.Protected = true
	p.Tier = tier
	return p
}

func typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in In
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &in); err != nil {
				return nil, Wrap(CodeBadRequest, "Invalid input", err)
			}
		}
		return fn(ctx, in)
	}
}

// Authenticator reports whether ctx belongs to a signed-in caller.
type Authenticator func(ctx context.Context) bool

// Entitlement reports whether the caller in ctx holds at least tier.
type Entitlement func(ctx context.Context, tier string) bool

// Option configures a Router.
type Option func(*Router)

// WithEntitlement sets the check used by tier-gated procedures. Without it
// every tier-gated call is forbidden.
func WithEntitlement(fn Entitlement) Option {
	return func(rt *Router) {
		rt.entitled = fn
	}
}

// Router dispatches requests to procedures. Mount it behind
// http.StripPrefix so that the request path is the procedure name.
type Router struct {
	procedures    map[string]Procedure
	authenticated Authenticator
	entitled      Entitlement
}

// NewRouter creates an empty Router.
func NewRouter(authenticated Authenticator, opts ...Option) *Router {
	if authenticated == nil {
		authenticated = func(context.Context) bool { return false }
	}
	rt := &Router{
		procedures:    make(map[string]Procedure),
		authenticated: authenticated,
		entitled:      func(context.Context, string) bool { return false },
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handle registers p under name, e.g. "deck.getDeck".
func (rt *Router) Handle(name string, p Procedure) {
	if _, exists := rt.procedures[name]; exists {
		panic(fmt.Sprintf("rpc: procedure %q registered twice", name))
	}
	rt.procedures[name] = p
}

// Group registers procedures under a common prefix.
func (rt *Router) Group(prefix string, procs map[string]Procedure) {
	for name, p := range procs {
		rt.Handle(prefix+"."+name, p)
	}
}

// Procedures returns the registered procedure names and kinds.
func (rt *Router) Procedures() map[string]Kind {
	out := make(map[string]Kind, len(rt.procedures))
	for name, p := range rt.procedures {
		out[name] = p.Kind
	}
	return out
}

type envelope struct {
	Result *resultBody `json:"result,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type resultBody struct {
	Data any `json:"data"`
}

type errorBody struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Code        Code         `json:"code"`
	HTTPStatus  int          `json:"httpStatus"`
	Path        string       `json:"path,omitempty"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	batch := r.URL.Query().Get("batch") == "1"

	var kind Kind
	switch r.Method {
	case http.MethodGet:
		kind = Query
	case http.MethodPost:
		kind = Mutation
	default:
		rt.writeSingle(w, r, path, nil, NewError(CodeMethodNotSupported, "Unsupported method "+r.Method))
		return
	}

	raw, err := readInput(r, kind)
	if err != nil {
		rt.writeSingle(w, r, path, nil, err)
		return
	}

	c := &call{req: r}
	ctx := context.WithValue(r.Context(), callKey{}, c)

	if !batch {
		data, err := rt.invoke(ctx, path, kind, raw)
		rt.flushCookies(w, c)
		rt.writeSingle(w, r, path, data, err)
		return
	}

	names := strings.Split(path, ",")
	inputs := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			rt.writeSingle(w, r, path, nil, Wrap(CodeParseError, "Batch input must be an object keyed by index", err))
			return
		}
	}

	results := make([]envelope, len(names))
	status := 0
	for i, name := range names {
		data, err := rt.invoke(ctx, name, kind, inputs[strconv.Itoa(i)])
		env, code := rt.envelopeFor(r, name, data, err)
		results[i] = env
		if status == 0 {
			status = code
		} else if status != code {
			status = http.StatusMultiStatus
		}
	}

	rt.flushCookies(w, c)
	writeJSON(w, status, results)
}

func (rt *Router) invoke(ctx context.Context, name string, kind Kind, raw json.RawMessage) (any, error) {
	p, ok := rt.procedures[name]
	if !ok {
		return nil, NewError(CodeNotFound, fmt.Sprintf("No procedure found on path %q", name))
	}
	if p.Kind != kind {
		return nil, NewError(CodeMethodNotSupported, fmt.Sprintf("Procedure %q is a %s", name, p.Kind))
	}
	if p.Protected && !rt.authenticated(ctx) {
		return nil, Unauthorized("Not authenticated")
	}
	if p.Tier != "" && !rt.entitled(ctx, p.Tier) {
		return nil, NewError(CodeForbidden, fmt.Sprintf("This feature requires %s subscription", p.Tier))
	}
	return p.Handler(ctx, raw)
}

func readInput(r *http.Request, kind Kind) (json.RawMessage, error) {
	if kind == Query {
		input := r.URL.Query().Get("input")
		if input == "" {
			return nil, nil
		}
		if !json.Valid([]byte(input)) {
			return nil, NewError(CodeParseError, "Input is not valid JSON")
		}
		return json.RawMessage(input), nil
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(nil, r.Body, 1<<20)); err != nil {
		return nil, Wrap(CodeParseError, "Could not read request body", err)
	}
	body := bytes.TrimSpace(buf.Bytes())
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, NewError(CodeParseError, "Body is not valid JSON")
	}
	return json.RawMessage(body), nil
}

func (rt *Router) envelopeFor(r *http.Request, path string, data any, err error) (envelope, int) {
	if err == nil {
		return envelope{Result: &resultBody{Data: data}}, http.StatusOK
	}

	rpcErr := AsError(err)
	status := rpcErr.Code.HTTPStatus()
	logger := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", path).Msg("RPC procedure failed")
	} else {
		logger.Debug().Err(err).Str("path", path).Msg("RPC procedure rejected")
	}

	return envelope{Error: &errorBody{
		Message: rpcErr.Message,
		Code:    rpcErr.Code.JSONRPCCode(),
		Data: errorData{
			Code:        rpcErr.Code,
			HTTPStatus:  status,
			Path:        path,
			FieldErrors: rpcErr.FieldErrors,
		},
	}}, status
}

func (rt *Router) writeSingle(w http.ResponseWriter, r *http.Request, path string, data any, err error) {
	env, status := rt.envelopeFor(r, path, data, err)
	writeJSON(w, status, env)
}

func (rt *Router) flushCookies(w http.ResponseWriter, c *call) {
	for _, cookie := range c.cookies {
		http.SetCookie(w, cookie)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
