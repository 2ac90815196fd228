package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// Metabase sessions last 14 days; refresh well before that so we never
	// hand out an about-to-expire credential.
	sessionCacheTTL = 24 * time.Hour

	// requestTimeout bounds mutating and read calls; probeTimeout bounds
	// health/status probes.
	requestTimeout = 30 * time.Second
	probeTimeout   = 10 * time.Second
)

// Config captures the knobs required to talk to a Metabase instance.
type Config struct {
	BaseURL       string
	AdminEmail    string
	AdminPassword string
	HTTPClient    *http.Client // optional; defaults to http.DefaultClient
	Clock         clock.Clock  // optional; defaults to wall clock
	Logger        *zap.Logger  // optional; defaults to zap.NewNop
}

// Client is the single point of authenticated, retried communication with
// the Metabase REST API. It owns the admin session credential cache; all
// other state lives with the callers.
type Client struct {
	baseURL       string
	adminEmail    string
	adminPassword string
	httpc         *http.Client
	clock         clock.Clock
	logger        *zap.Logger

	mu            sync.Mutex
	session       string
	sessionExpiry time.Time
	refresh       singleflight.Group
}

// NewClient constructs a Client. Admin credentials are exchanged lazily for a
// session token on first use.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		panic("metabase client requires base url")
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		panic("metabase client requires admin credentials")
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		adminEmail:    cfg.AdminEmail,
		adminPassword: cfg.AdminPassword,
		httpc:         httpc,
		clock:         clk,
		logger:        logger,
	}
}

// authenticate returns a valid session token, exchanging admin credentials
// when the cache is empty or stale. Concurrent refreshes coalesce into a
// single outbound session request.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.session != "" && c.clock.Now().Before(c.sessionExpiry) {
		token := c.session
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.refresh.Do("session", func() (interface{}, error) {
		return c.createSession(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) createSession(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"username": c.adminEmail,
		"password": c.adminPassword,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", transportError("POST", "/api/session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if session.ID == "" {
		return "", errors.New("metabase session response missing id")
	}

	c.mu.Lock()
	c.session = session.ID
	c.sessionExpiry = c.clock.Now().Add(sessionCacheTTL)
	c.mu.Unlock()

	c.logger.Info("authenticated with metabase")
	return session.ID, nil
}

// invalidateSession drops the cached token if it still matches the one that
// was rejected, so a concurrent refresh is not thrown away.
func (c *Client) invalidateSession(token string) {
	c.mu.Lock()
	if c.session == token {
		c.session = ""
		c.sessionExpiry = time.Time{}
	}
	c.mu.Unlock()
}

// do issues one authenticated call. A 401 invalidates the cached session and
// retries exactly once with a fresh token; any other non-2xx status surfaces
// as *APIError without retry.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, path, body, query, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck
		resp.Body.Close()
		c.invalidateSession(token)

		token, err = c.authenticate(ctx)
		if err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, body, query, token)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}, query url.Values, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + "/api/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Metabase-Session", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, transportError(method, path, err)
	}
	return resp, nil
}

func transportError(method, path string, err error) error {
	return fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
}

// unwrapList decodes a Metabase list payload that is either a bare JSON array
// or wrapped in a {"data": [...]} envelope, depending on endpoint and version.
func unwrapList(raw json.RawMessage, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
