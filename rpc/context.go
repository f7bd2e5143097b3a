package rpc

import (
	"context"
	"net/http"
	"sync"
)

type callKey struct{}

type call struct {
	req     *http.Request
	mu      sync.Mutex
	cookies []*http.Cookie
}

// Request returns the HTTP request that carried the current call.
func Request(ctx context.Context) (*http.Request, bool) {
	c, ok := ctx.Value(callKey{}).(*call)
	if !ok {
		return nil, false
	}
	return c.req, true
}

// SetCookie queues a cookie on the response of the current call. It is a
// no-op outside of a call.
func SetCookie(ctx context.Context, cookie *http.Cookie) {
	c, ok := ctx.Value(callKey{}).(*call)
	if !ok {
		return
	}
	c.mu.Lock()
	c.cookies = append(c.cookies, cookie)
	c.mu.Unlock()
}
