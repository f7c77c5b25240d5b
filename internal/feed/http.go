package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/feedwatch/feedwatch/internal/core"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "feedwatch"
	maxBodyBytes     = 1 << 20
)

// HTTPFactory builds HTTPClients for a JSON feed API.
type HTTPFactory struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the base transport for unproxied requests.
	Transport http.RoundTripper

	transports transportCache
}

// New returns a fresh unauthenticated client. Clients from one factory share
// a transport per proxy endpoint.
func (f *HTTPFactory) New() Client {
	return &HTTPClient{
		BaseURL:    f.BaseURL,
		UserAgent:  f.UserAgent,
		Timeout:    f.Timeout,
		transport:  f.Transport,
		transports: &f.transports,
	}
}

// CloseIdleConnections closes idle connections of every proxy transport the
// factory's clients have used.
func (f *HTTPFactory) CloseIdleConnections() {
	f.transports.closeIdle()
}

// transportCache holds one transport per proxy endpoint so keep-alive
// connections survive proxy rotation.
type transportCache struct {
	mu         sync.Mutex
	transports map[core.ProxyEndpoint]*http.Transport
}

// sharedTransports serves clients built without a factory.
var sharedTransports transportCache

func (t *transportCache) get(endpoint core.ProxyEndpoint) (*http.Transport, error) {
	endpoint.URL = strings.TrimSpace(endpoint.URL)

	t.mu.Lock()
	defer t.mu.Unlock()
	if transport, ok := t.transports[endpoint]; ok {
		return transport, nil
	}
	transport, err := proxyTransport(endpoint)
	if err != nil {
		return nil, err
	}
	if t.transports == nil {
		t.transports = make(map[core.ProxyEndpoint]*http.Transport)
	}
	t.transports[endpoint] = transport
	return transport, nil
}

func (t *transportCache) closeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, transport := range t.transports {
		transport.CloseIdleConnections()
	}
}

// HTTPClient talks to a JSON feed API over HTTP.
//
// Auth material is the list of "name=value" cookies returned by login and
// replayed on every request.
type HTTPClient struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	transport  http.RoundTripper
	transports *transportCache

	mu       sync.RWMutex
	material []string
	proxy    *core.ProxyEndpoint
	client   *http.Client
}

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type itemsResponse struct {
	Items []wireItem `json:"items"`
}

type wireItem struct {
	ID     string `json:"id"`
	Author struct {
		Handle string `json:"handle"`
		Name   string `json:"name"`
		URL    string `json:"url"`
	} `json:"author"`
	Text string `json:"text"`
	// HTML is used when the API returns a rendered body instead of Text.
	HTML      string       `json:"html"`
	URL       string       `json:"url"`
	CreatedAt time.Time    `json:"created_at"`
	Media     []core.Media `json:"media"`
	Metrics   struct {
		Likes   int `json:"likes"`
		Reposts int `json:"reposts"`
		Replies int `json:"replies"`
	} `json:"metrics"`
}

// Login authenticates and captures the session cookies.
func (c *HTTPClient) Login(ctx context.Context, identity, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(loginRequest{Identity: identity, Password: password})
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/login", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode != http.StatusOK {
		return statusError("login", resp)
	}

	var material []string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "" {
			continue
		}
		material = append(material, cookie.Name+"="+cookie.Value)
	}
	if len(material) == 0 {
		return errors.New("login succeeded without session cookies")
	}

	c.SetAuthMaterial(material)
	return nil
}

// AuthMaterial returns a copy of the session cookies.
func (c *HTTPClient) AuthMaterial() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.material...)
}

// SetAuthMaterial replaces the session cookies.
func (c *HTTPClient) SetAuthMaterial(material []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.material = append([]string(nil), material...)
}

// SetProxy routes subsequent requests through endpoint, or directly when nil.
// http, https and socks5 endpoints are supported; an unusable endpoint falls
// back to a direct connection.
func (c *HTTPClient) SetProxy(endpoint *core.ProxyEndpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case endpoint == nil && c.proxy == nil:
		return
	case endpoint != nil && c.proxy != nil && *endpoint == *c.proxy:
		return
	}

	if endpoint == nil {
		c.proxy = nil
	} else {
		copied := *endpoint
		c.proxy = &copied
	}
	c.client = nil
}

// Proxy returns the endpoint currently in use, if any.
func (c *HTTPClient) Proxy() *core.ProxyEndpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.proxy == nil {
		return nil
	}
	copied := *c.proxy
	return &copied
}

// LatestItem fetches the most recent item for handle, or nil when the feed is empty.
func (c *HTTPClient) LatestItem(ctx context.Context, handle string) (*core.Item, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	handle = core.NormalizeHandle(handle)
	if handle == "" {
		return nil, errors.New("handle is required")
	}

	path := "/api/v1/users/" + url.PathEscape(handle) + "/items?limit=1"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch items for %s: %w", handle, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch items for "+handle, resp)
	}

	var payload itemsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode items for %s: %w", handle, err)
	}
	if len(payload.Items) == 0 {
		return nil, nil
	}

	item := payload.Items[0].toItem()
	if item.ID == "" {
		return nil, fmt.Errorf("item for %s has no id", handle)
	}
	return item, nil
}

// CheckSession reports whether the current cookies are still accepted.
func (c *HTTPClient) CheckSession(ctx context.Context) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(c.AuthMaterial()) == 0 {
		return false, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/session", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, statusError("check session", resp)
	}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("feed base url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	agent := c.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", "application/json")

	for _, cookie := range c.AuthMaterial() {
		name, value, ok := strings.Cut(cookie, "=")
		if !ok || name == "" {
			continue
		}
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

func (c *HTTPClient) httpClient() *http.Client {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client != nil {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.client = &http.Client{
		Timeout:   timeout,
		Transport: c.roundTripper(),
	}
	return c.client
}

// roundTripper must be called with mu held.
func (c *HTTPClient) roundTripper() http.RoundTripper {
	if c.proxy == nil {
		if c.transport != nil {
			return c.transport
		}
		return http.DefaultTransport
	}
	cache := c.transports
	if cache == nil {
		cache = &sharedTransports
	}
	transport, err := cache.get(*c.proxy)
	if err != nil {
		return http.DefaultTransport
	}
	return transport
}

func proxyTransport(endpoint core.ProxyEndpoint) (*http.Transport, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint.URL))
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", endpoint.URL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if endpoint.HasAuth() {
			parsed.User = url.UserPassword(endpoint.Username, endpoint.Password)
		}
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5", "socks5h":
		var auth *xproxy.Auth
		if endpoint.HasAuth() {
			auth = &xproxy.Auth{User: endpoint.Username, Password: endpoint.Password}
		} else if parsed.User != nil {
			password, _ := parsed.User.Password()
			auth = &xproxy.Auth{User: parsed.User.Username(), Password: password}
		}
		dialer, err := xproxy.SOCKS5("tcp", parsed.Host, auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		transport.Proxy = nil
		if contextDialer, ok := dialer.(xproxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	return transport, nil
}

// ValidateProxyURL reports whether endpoint can be turned into a transport.
func ValidateProxyURL(endpoint core.ProxyEndpoint) error {
	_, err := proxyTransport(endpoint)
	return err
}

func statusError(op string, resp *http.Response) error {
	retryAfter, _ := retryAfterHeader(resp)
	return &StatusError{Op: op, Code: resp.StatusCode, RetryAfter: retryAfter}
}

func retryAfterHeader(resp *http.Response) (time.Duration, bool) {
	if resp == nil || resp.Header == nil {
		return 0, false
	}
	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0, false
	}
	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds, true
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed), true
	}
	return 0, false
}

func (w wireItem) toItem() *core.Item {
	author := w.Author.Name
	if author == "" {
		author = w.Author.Handle
	}
	text, media := w.Text, w.Media
	if strings.TrimSpace(text) == "" && strings.TrimSpace(w.HTML) != "" {
		var inline []core.Media
		text, inline = fromHTML(w.HTML)
		if len(media) == 0 {
			media = inline
		}
	}
	return &core.Item{
		ID:        w.ID,
		Author:    author,
		AuthorURL: w.Author.URL,
		Text:      text,
		URL:       w.URL,
		Timestamp: w.CreatedAt,
		Media:     media,
		Metrics: core.EngagementMetrics{
			Likes:   w.Metrics.Likes,
			Reposts: w.Metrics.Reposts,
			Replies: w.Metrics.Replies,
		},
	}
}
