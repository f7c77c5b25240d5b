package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/feedwatch/feedwatch/internal/core"
)

// Client is an authenticated feed session.
//
// Implementations must be safe for concurrent use: the same client may be
// handed to several in-flight checks while a refresh re-binds its proxy.
type Client interface {
	Login(ctx context.Context, identity, password string) error
	AuthMaterial() []string
	SetAuthMaterial(material []string)
	SetProxy(endpoint *core.ProxyEndpoint)
	LatestItem(ctx context.Context, handle string) (*core.Item, error)
	CheckSession(ctx context.Context) (bool, error)
}

// Factory creates unauthenticated clients.
type Factory interface {
	New() Client
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() Client

// New calls f.
func (f FactoryFunc) New() Client {
	return f()
}

// StatusError is a non-success upstream response.
type StatusError struct {
	Op         string
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, statusPhrase(e.Code), e.Code)
}

// RateLimited reports whether the upstream signalled a rate limit.
func (e *StatusError) RateLimited() bool {
	return e != nil && e.Code == http.StatusTooManyRequests
}

// Unauthorized reports whether the upstream rejected the session.
func (e *StatusError) Unauthorized() bool {
	return e != nil && (e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden)
}

func statusPhrase(code int) string {
	switch code {
	case http.StatusTooManyRequests:
		return "rate limit exceeded"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "account blocked"
	default:
		if text := http.StatusText(code); text != "" {
			return text
		}
		return "unexpected status"
	}
}
