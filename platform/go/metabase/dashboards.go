package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// Dashboard is a Metabase dashboard.
type Dashboard struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CollectionID int    `json:"collection_id"`
}

// CreateDashboard creates a dashboard inside a collection.
func (c *Client) CreateDashboard(ctx context.Context, name string, collectionID int, description string) (Dashboard, error) {
	c.logger.Info("creating dashboard", zap.String("name", name), zap.Int("collection_id", collectionID))

	body := map[string]interface{}{
		"name":          name,
		"description":   description,
		"collection_id": collectionID,
	}

	var out Dashboard
	if err := c.do(ctx, "POST", "dashboard", body, nil, &out); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// GetDashboard fetches dashboard details.
func (c *Client) GetDashboard(ctx context.Context, id int) (Dashboard, error) {
	var out Dashboard
	if err := c.do(ctx, "GET", fmt.Sprintf("dashboard/%d", id), nil, nil, &out); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// ListDashboards lists dashboards, optionally filtered by collection.
func (c *Client) ListDashboards(ctx context.Context, collectionID *int) ([]Dashboard, error) {
	var query url.Values
	if collectionID != nil {
		query = url.Values{"collection": []string{strconv.Itoa(*collectionID)}}
	}

	var raw json.RawMessage
	if err := c.do(ctx, "GET", "dashboard", nil, query, &raw); err != nil {
		return nil, err
	}
	var out []Dashboard
	if err := unwrapList(raw, &out); err != nil {
		return nil, fmt.Errorf("decode dashboard list: %w", err)
	}
	return out, nil
}
