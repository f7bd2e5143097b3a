// Package client is a Go SDK for the flashd API: typed procedure calls over
// the rpc envelope, a cookie-jar session, a query cache and optimistic
// mutation hooks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy controls how queries are retried on transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries a failed query up to three times.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   2 * time.Second,
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. A cookie jar is added when the
// client has none.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRetryPolicy overrides the default retry configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client calls procedures on a flashd server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	retry      RetryPolicy
	logger     zerolog.Logger
	cache      *Cache
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("client: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      DefaultRetryPolicy,
		logger:     zerolog.Nop(),
		cache:      NewCache(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	if c.retry.MaxRetries < 0 {
		c.retry.MaxRetries = 0
	}
	if c.retry.BaseDelay <= 0 {
		c.retry.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if c.retry.MaxDelay <= 0 {
		c.retry.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return c, nil
}

// Cache returns the client's query cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Data    struct {
			Code        string       `json:"code"`
			HTTPStatus  int          `json:"httpStatus"`
			Path        string       `json:"path"`
			FieldErrors []FieldError `json:"fieldErrors"`
		} `json:"data"`
	} `json:"error"`
}

func (e envelope) decode(procedure string, status int, out any) error {
	if e.Error != nil {
		if e.Error.Data.HTTPStatus != 0 {
			status = e.Error.Data.HTTPStatus
		}
		return &Error{
			Procedure:   procedure,
			Code:        e.Error.Data.Code,
			Status:      status,
			Message:     e.Error.Message,
			FieldErrors: e.Error.Data.FieldErrors,
		}
	}
	if e.Result == nil {
		return &Error{Procedure: procedure, Status: status, Message: "response has neither result nor error"}
	}
	if out == nil || len(e.Result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Result.Data, out); err != nil {
		return fmt.Errorf("client: decode %s result: %w", procedure, err)
	}
	return nil
}

// Query runs a query procedure and decodes its result into out. Transient
// failures are retried according to the retry policy.
func (c *Client) Query(ctx context.Context, procedure string, input, out any) error {
	return c.withRetry(ctx, procedure, func() error {
		return c.query(ctx, procedure, input, out)
	})
}

// QueryOnce runs a query procedure without retrying failures.
func (c *Client) QueryOnce(ctx context.Context, procedure string, input, out any) error {
	return c.query(ctx, procedure, input, out)
}

type queryFunc func(ctx context.Context, procedure string, input, out any) error

// Mutate runs a mutation procedure once and decodes its result into out.
func (c *Client) Mutate(ctx context.Context, procedure string, input, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("client: encode %s input: %w", procedure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.procedureURL(procedure, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var env envelope
	status, err := c.send(req, &env)
	if err != nil {
		return err
	}
	return env.decode(procedure, status, out)
}

// Call is one entry of a batched query.
type Call struct {
	Procedure string
	Input     any
	Out       any
}

// Batch runs several queries in one request. The returned slice holds the
// per-call error, nil on success; the error return is for transport failures.
func (c *Client) Batch(ctx context.Context, calls []Call) ([]error, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	names := make([]string, len(calls))
	inputs := make(map[string]any, len(calls))
	for i, call := range calls {
		names[i] = call.Procedure
		if call.Input != nil {
			inputs[strconv.Itoa(i)] = call.Input
		}
	}
	q := url.Values{"batch": {"1"}}
	if len(inputs) > 0 {
		raw, err := json.Marshal(inputs)
		if err != nil {
			return nil, fmt.Errorf("client: encode batch input: %w", err)
		}
		q.Set("input", string(raw))
	}

	var results []envelope
	var status int
	err := c.withRetry(ctx, strings.Join(names, ","), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.procedureURL(strings.Join(names, ","), q), nil)
		if err != nil {
			return err
		}
		results = nil
		status, err = c.sendBatch(req, &results)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("client: batch returned %d results for %d calls", len(results), len(calls))
	}

	errs := make([]error, len(calls))
	for i, call := range calls {
		errs[i] = results[i].decode(call.Procedure, status, call.Out)
	}
	return errs, nil
}

func (c *Client) query(ctx context.Context, procedure string, input, out any) error {
	var q url.Values
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("client: encode %s input: %w", procedure, err)
		}
		q = url.Values{"input": {string(raw)}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.procedureURL(procedure, q), nil)
	if err != nil {
		return err
	}

	var env envelope
	status, err := c.send(req, &env)
	if err != nil {
		return err
	}
	return env.decode(procedure, status, out)
}

func (c *Client) withRetry(ctx context.Context, procedure string, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retry.BaseDelay
	exp.MaxInterval = c.retry.MaxDelay
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retry.MaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("procedure", procedure).Dur("retry_in", wait).Msg("Retrying query")
	})
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Only transport failures from http.Client.Do are worth repeating.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

func (c *Client) procedureURL(procedure string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/trpc/" + procedure
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) send(req *http.Request, env *envelope) (int, error) {
	body, status, err := c.roundTrip(req)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(body, env); err != nil {
		return status, &Error{Status: status, Message: fmt.Sprintf("unexpected response body: %s", truncate(body))}
	}
	return status, nil
}

func (c *Client) sendBatch(req *http.Request, out *[]envelope) (int, error) {
	body, status, err := c.roundTrip(req)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		// A failure before dispatch comes back as a single envelope.
		var env envelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.Error != nil {
			return status, env.decode(req.URL.Path, status, nil)
		}
		return status, &Error{Status: status, Message: fmt.Sprintf("unexpected response body: %s", truncate(body))}
	}
	return status, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("client: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
