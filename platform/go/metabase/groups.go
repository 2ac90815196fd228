package metabase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Group is a Metabase permission group.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GroupMembership ties a Metabase user to a group.
type GroupMembership struct {
	ID      int `json:"membership_id"`
	UserID  int `json:"user_id"`
	GroupID int `json:"group_id"`
}

// CreateGroup creates a permission group.
func (c *Client) CreateGroup(ctx context.Context, name string) (Group, error) {
	c.logger.Info("creating group", zap.String("name", name))

	var out Group
	if err := c.do(ctx, "POST", "permissions/group", map[string]string{"name": name}, nil, &out); err != nil {
		return Group{}, err
	}
	return out, nil
}

// GetGroup fetches group details.
func (c *Client) GetGroup(ctx context.Context, id int) (Group, error) {
	var out Group
	if err := c.do(ctx, "GET", fmt.Sprintf("permissions/group/%d", id), nil, nil, &out); err != nil {
		return Group{}, err
	}
	return out, nil
}

// ListGroups lists all permission groups.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", "permissions/group", nil, nil, &raw); err != nil {
		return nil, err
	}
	var out []Group
	if err := unwrapList(raw, &out); err != nil {
		return nil, fmt.Errorf("decode group list: %w", err)
	}
	return out, nil
}

// DeleteGroup removes a permission group.
func (c *Client) DeleteGroup(ctx context.Context, id int) error {
	c.logger.Info("deleting group", zap.Int("group_id", id))
	return c.do(ctx, "DELETE", fmt.Sprintf("permissions/group/%d", id), nil, nil, nil)
}

// AddGroupMember adds a Metabase user to a group.
func (c *Client) AddGroupMember(ctx context.Context, userID, groupID int) error {
	c.logger.Info("adding user to group", zap.Int("user_id", userID), zap.Int("group_id", groupID))

	body := map[string]int{
		"user_id":  userID,
		"group_id": groupID,
	}
	return c.do(ctx, "POST", "permissions/membership", body, nil, nil)
}

// RemoveGroupMember removes one membership row by its Metabase id.
func (c *Client) RemoveGroupMember(ctx context.Context, membershipID int) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("permissions/membership/%d", membershipID), nil, nil, nil)
}
