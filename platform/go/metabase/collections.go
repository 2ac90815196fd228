package metabase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Collection is a Metabase container grouping dashboards for one workspace.
type Collection struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Archived    bool   `json:"archived"`
}

// CollectionItem is one entry of a collection listing. Model distinguishes
// dashboards from cards, sub-collections and other item kinds.
type CollectionItem struct {
	ID    int
	Name  string
	Model string
	// Raw keeps the untouched item payload so callers can persist it as an
	// opaque snapshot.
	Raw json.RawMessage
}

func (i *CollectionItem) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	i.ID = fields.ID
	i.Name = fields.Name
	i.Model = fields.Model
	i.Raw = append(json.RawMessage(nil), data...)
	return nil
}

const defaultCollectionColor = "#509EE3"

// CreateCollection creates a root-level collection.
func (c *Client) CreateCollection(ctx context.Context, name, description string) (Collection, error) {
	c.logger.Info("creating collection", zap.String("name", name))

	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"color":       defaultCollectionColor,
	}

	var out Collection
	if err := c.do(ctx, "POST", "collection", body, nil, &out); err != nil {
		return Collection{}, err
	}
	return out, nil
}

// GetCollection fetches collection details.
func (c *Client) GetCollection(ctx context.Context, id int) (Collection, error) {
	var out Collection
	if err := c.do(ctx, "GET", fmt.Sprintf("collection/%d", id), nil, nil, &out); err != nil {
		return Collection{}, err
	}
	return out, nil
}

// ListCollections lists all collections visible to the admin session.
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", "collection", nil, nil, &raw); err != nil {
		return nil, err
	}
	var out []Collection
	if err := unwrapList(raw, &out); err != nil {
		return nil, fmt.Errorf("decode collection list: %w", err)
	}
	return out, nil
}

// UpdateCollection patches name and/or description; nil fields are left untouched.
func (c *Client) UpdateCollection(ctx context.Context, id int, name, description *string) (Collection, error) {
	body := map[string]interface{}{}
	if name != nil {
		body["name"] = *name
	}
	if description != nil {
		body["description"] = *description
	}

	var out Collection
	if err := c.do(ctx, "PUT", fmt.Sprintf("collection/%d", id), body, nil, &out); err != nil {
		return Collection{}, err
	}
	return out, nil
}

// DeleteCollection archives/removes a collection.
func (c *Client) DeleteCollection(ctx context.Context, id int) error {
	c.logger.Info("deleting collection", zap.Int("collection_id", id))
	return c.do(ctx, "DELETE", fmt.Sprintf("collection/%d", id), nil, nil, nil)
}

// SetEmbeddingEnabled re-asserts the collection's public-embedding flag.
// Setting an already-enabled flag is a no-op on the Metabase side, which is
// what makes the reconciliation repair pass idempotent.
func (c *Client) SetEmbeddingEnabled(ctx context.Context, collectionID int) error {
	body := map[string]interface{}{"enable_embedding": true}
	return c.do(ctx, "PUT", fmt.Sprintf("collection/%d", collectionID), body, nil, nil)
}

// CollectionItems lists the items inside a collection. Metabase wraps this
// listing in a {"data": [...]} envelope on recent versions and returns a bare
// array on older ones; callers always see a plain slice.
func (c *Client) CollectionItems(ctx context.Context, collectionID int) ([]CollectionItem, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", fmt.Sprintf("collection/%d/items", collectionID), nil, nil, &raw); err != nil {
		return nil, err
	}
	var out []CollectionItem
	if err := unwrapList(raw, &out); err != nil {
		return nil, fmt.Errorf("decode collection items: %w", err)
	}
	return out, nil
}
