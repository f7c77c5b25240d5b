package feed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/core"
)

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "tok-" + req.Identity})
		http.SetCookie(w, &http.Cookie{Name: "ct0", Value: "csrf"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/session", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("auth_token"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/limited/"):
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case strings.Contains(r.URL.Path, "/empty/"):
			_, _ = w.Write([]byte(`{"items":[]}`))
		case strings.Contains(r.URL.Path, "/rendered/"):
			_, _ = w.Write([]byte(`{"items":[{"id":"7","author":{"handle":"rendered"},"html":"<p>first <b>line</b></p><p>second<br>third</p><img src=\"https://img.example.com/2.png\">"}]}`))
		default:
			_, _ = w.Write([]byte(`{"items":[{"id":"42","author":{"handle":"alice","name":"Alice","url":"https://example.com/alice"},"text":"hello","url":"https://example.com/alice/42","created_at":"2025-01-01T00:00:00Z","media":[{"url":"https://img.example.com/1.png","type":"photo"}],"metrics":{"likes":3,"reposts":2,"replies":1}}]}`))
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClientLoginCapturesCookies(t *testing.T) {
	server := newFeedServer(t)
	factory := &HTTPFactory{BaseURL: server.URL, Timeout: time.Second}

	client := factory.New()
	require.NoError(t, client.Login(context.Background(), "alice", "secret"))
	require.ElementsMatch(t, []string{"auth_token=tok-alice", "ct0=csrf"}, client.AuthMaterial())

	ok, err := client.CheckSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHTTPClientLoginRejected(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()

	err := client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.True(t, statusErr.Unauthorized())
	require.Contains(t, err.Error(), "unauthorized")
	require.Empty(t, client.AuthMaterial())
}

func TestHTTPClientCheckSessionWithoutMaterial(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()

	ok, err := client.CheckSession(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	client.SetAuthMaterial([]string{"other=1"})
	ok, err = client.CheckSession(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHTTPClientLatestItem(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()
	client.SetAuthMaterial([]string{"auth_token=x"})

	item, err := client.LatestItem(context.Background(), "@alice")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, "42", item.ID)
	require.Equal(t, "Alice", item.Author)
	require.Equal(t, "https://example.com/alice", item.AuthorURL)
	require.Equal(t, core.EngagementMetrics{Likes: 3, Reposts: 2, Replies: 1}, item.Metrics)
	require.Len(t, item.Media, 1)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), item.Timestamp.UTC())
}

func TestHTTPClientLatestItemFromHTML(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()

	item, err := client.LatestItem(context.Background(), "rendered")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, "rendered", item.Author)
	require.Equal(t, "first line\nsecond\nthird", item.Text)
	require.Equal(t, []core.Media{{Type: "photo", URL: "https://img.example.com/2.png"}}, item.Media)
}

func TestFromHTML(t *testing.T) {
	text, media := fromHTML(`<div>a</div><script>x()</script><div></div><div>b</div><img src="data:image/png;base64,AA">`)
	require.Equal(t, "a\n\nb", text)
	require.Empty(t, media)

	require.Equal(t, "x\n\ny", collapseBlankLines("  x \n\n\n  y\n"))
}

func TestHTTPClientLatestItemEmpty(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()

	item, err := client.LatestItem(context.Background(), "empty")
	require.NoError(t, err)
	require.Nil(t, item)
}

func TestHTTPClientLatestItemRateLimited(t *testing.T) {
	server := newFeedServer(t)
	client := (&HTTPFactory{BaseURL: server.URL}).New()

	_, err := client.LatestItem(context.Background(), "limited")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.True(t, statusErr.RateLimited())
	require.Equal(t, 30*time.Second, statusErr.RetryAfter)
	require.Contains(t, err.Error(), "rate limit")
}

func TestHTTPClientRoutesThroughHTTPProxy(t *testing.T) {
	var proxyAuth string
	var proxiedURL string
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyAuth = r.Header.Get("Proxy-Authorization")
		proxiedURL = r.URL.String()
		_, _ = w.Write([]byte(`{"items":[{"id":"7","author":{"handle":"bob"}}]}`))
	}))
	defer proxyServer.Close()

	client := (&HTTPFactory{BaseURL: "http://feed.invalid"}).New()
	client.SetProxy(&core.ProxyEndpoint{URL: proxyServer.URL, Username: "user", Password: "pass"})

	item, err := client.LatestItem(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "7", item.ID)
	require.Equal(t, "bob", item.Author)
	require.Equal(t, "http://feed.invalid/api/v1/users/bob/items?limit=1", proxiedURL)
	require.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")), proxyAuth)

	client.SetProxy(nil)
	require.Nil(t, client.(*HTTPClient).Proxy())
}

func TestHTTPClientReusesProxyConnections(t *testing.T) {
	var connections atomic.Int32
	proxyServer := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"1","author":{"handle":"alice"},"text":"hi"}]}`))
	}))
	proxyServer.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			connections.Add(1)
		}
	}
	proxyServer.Start()
	defer proxyServer.Close()

	factory := &HTTPFactory{BaseURL: "http://feed.invalid", Timeout: time.Second}
	defer factory.CloseIdleConnections()
	endpoint := core.ProxyEndpoint{URL: proxyServer.URL}

	client := factory.New()
	for range 20 {
		client.SetProxy(&endpoint)
		item, err := client.LatestItem(context.Background(), "alice")
		require.NoError(t, err)
		require.Equal(t, "1", item.ID)
	}

	other := factory.New()
	other.SetProxy(&endpoint)
	_, err := other.LatestItem(context.Background(), "alice")
	require.NoError(t, err)

	require.EqualValues(t, 1, connections.Load())
}

func TestTransportCachePerEndpoint(t *testing.T) {
	var cache transportCache

	first, err := cache.get(core.ProxyEndpoint{URL: "http://proxy.example:8080"})
	require.NoError(t, err)
	again, err := cache.get(core.ProxyEndpoint{URL: " http://proxy.example:8080 "})
	require.NoError(t, err)
	withAuth, err := cache.get(core.ProxyEndpoint{URL: "http://proxy.example:8080", Username: "u", Password: "p"})
	require.NoError(t, err)

	require.Same(t, first, again)
	require.NotSame(t, first, withAuth)

	_, err = cache.get(core.ProxyEndpoint{URL: "ftp://proxy.example"})
	require.Error(t, err)
	cache.closeIdle()
}

func TestValidateProxyURL(t *testing.T) {
	require.NoError(t, ValidateProxyURL(core.ProxyEndpoint{URL: "http://proxy.example:8080"}))
	require.NoError(t, ValidateProxyURL(core.ProxyEndpoint{URL: "socks5://proxy.example:1080", Username: "u", Password: "p"}))
	require.Error(t, ValidateProxyURL(core.ProxyEndpoint{URL: "ftp://proxy.example"}))
	require.Error(t, ValidateProxyURL(core.ProxyEndpoint{URL: "not a url"}))
}
