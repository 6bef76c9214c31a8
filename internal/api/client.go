// Package api implements the MapGrid platform API client. It owns the
// shared bearer token used for authenticated calls and issues the
// "current user" profile request on behalf of the authorization core.
package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const defaultBaseURL = "https://api.mapgrid.io/v2"

// Client is the shared HTTP client for the MapGrid API. The bearer token
// it carries is owned by the authorization manager: set on successful
// authorization, cleared on sign-out.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates an API client. proxyURL may be empty; http, https and
// socks5 schemes are supported.
func NewClient(baseURL, proxyURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// newHTTPClient builds the underlying HTTP client, routing through the
// configured proxy when one is set.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	if proxyURL == "" {
		return client, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	var transport *http.Transport
	switch parsed.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if user := parsed.User; user != nil {
			password, _ := user.Password()
			auth = &proxy.Auth{User: user.Username(), Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if errSOCKS5 != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", errSOCKS5)
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}

	client.Transport = transport
	return client, nil
}

// HTTPClient exposes the underlying HTTP client so collaborators (the
// OAuth token exchange) share the same proxy configuration.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetToken installs the bearer token used for authenticated requests.
// An empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the currently configured bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserReply is the handle for one in-flight profile request. The
// authorization manager compares reply handles by identity to discard
// responses belonging to superseded requests.
type UserReply struct {
	// StatusCode is the HTTP status of the response, 0 when the request
	// never completed.
	StatusCode int
	// Body is the raw response body.
	Body []byte
	// Err is the transport-level error, nil on success. A canceled
	// context surfaces here when the client is torn down mid-flight.
	Err error

	done chan struct{}
}

// Done is closed once the reply is fully populated.
func (r *UserReply) Done() <-chan struct{} {
	return r.done
}

// CurrentUser issues the "who am I" request and returns its reply handle
// immediately. The request runs on its own goroutine; callers wait on
// Done before inspecting the reply.
func (c *Client) CurrentUser(ctx context.Context) *UserReply {
	reply := &UserReply{done: make(chan struct{})}
	go func() {
		defer close(reply.done)
		c.fetchCurrentUser(ctx, reply)
	}()
	return reply
}

func (c *Client) fetchCurrentUser(ctx context.Context, reply *UserReply) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		reply.Err = fmt.Errorf("create user request: %w", err)
		return
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reply.Err = fmt.Errorf("user request failed: %w", err)
		return
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	reply.StatusCode = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		reply.Err = fmt.Errorf("read user response: %w", err)
		return
	}
	reply.Body = body
}
