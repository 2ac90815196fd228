package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Health reports whether the Metabase instance answers its health endpoint.
// It never returns an error; unreachable means unhealthy.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("metabase health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) // nolint:errcheck

	return resp.StatusCode == http.StatusOK
}

// SetupToken returns the first-run setup token, or "" when Metabase is
// already configured. The session properties endpoint is unauthenticated.
func (c *Client) SetupToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/session/properties", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", transportError("GET", "/api/session/properties", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var props struct {
		SetupToken string `json:"setup-token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		return "", err
	}
	return props.SetupToken, nil
}

// SetupParams carries the admin identity for first-run setup.
type SetupParams struct {
	AdminEmail    string
	AdminPassword string
	FirstName     string
	LastName      string
	SiteName      string
}

// Setup completes the first-run Metabase setup with the given admin identity.
// Returns without error when Metabase is already configured (no setup token).
func (c *Client) Setup(ctx context.Context, params SetupParams) error {
	token, err := c.SetupToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		c.logger.Info("metabase is already set up")
		return nil
	}

	c.logger.Info("running first-time metabase setup")

	siteName := params.SiteName
	if siteName == "" {
		siteName = "Analytics"
	}

	body := map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"first_name": params.FirstName,
			"last_name":  params.LastName,
			"email":      params.AdminEmail,
			"password":   params.AdminPassword,
			"site_name":  siteName,
		},
		"database": nil,
		"invite":   nil,
		"prefs": map[string]interface{}{
			"site_name":      siteName,
			"allow_tracking": false,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/setup", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return transportError("POST", "/api/setup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	io.Copy(io.Discard, resp.Body) // nolint:errcheck

	c.logger.Info("metabase setup completed")
	return nil
}
