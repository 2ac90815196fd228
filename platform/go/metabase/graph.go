package metabase

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"
)

// PermissionLevel is a collection permission granted to a group.
type PermissionLevel string

const (
	PermissionWrite PermissionLevel = "write"
	PermissionRead  PermissionLevel = "read"
	PermissionNone  PermissionLevel = "none"
)

// PermissionGraph is Metabase's nested group-id -> collection-id -> level
// mapping. The API requires read-modify-write of the whole structure; a blind
// overwrite would wipe every other group's grants.
type PermissionGraph struct {
	Revision int                                   `json:"revision"`
	Groups   map[string]map[string]PermissionLevel `json:"groups"`
}

// Grant returns a copy of the graph with the given grant merged in. The
// receiver is left untouched so the read-modify-write window stays explicit
// and testable.
func (g PermissionGraph) Grant(groupID, collectionID int, level PermissionLevel) PermissionGraph {
	next := PermissionGraph{
		Revision: g.Revision,
		Groups:   make(map[string]map[string]PermissionLevel, len(g.Groups)+1),
	}
	for group, grants := range g.Groups {
		copied := make(map[string]PermissionLevel, len(grants))
		for collection, lvl := range grants {
			copied[collection] = lvl
		}
		next.Groups[group] = copied
	}

	group := strconv.Itoa(groupID)
	if next.Groups[group] == nil {
		next.Groups[group] = make(map[string]PermissionLevel, 1)
	}
	next.Groups[group][strconv.Itoa(collectionID)] = level
	return next
}

// CollectionGraph fetches the current collection permission graph.
func (c *Client) CollectionGraph(ctx context.Context) (PermissionGraph, error) {
	var out PermissionGraph
	if err := c.do(ctx, "GET", "collection/graph", nil, nil, &out); err != nil {
		return PermissionGraph{}, err
	}
	return out, nil
}

// UpdateCollectionGraph writes back a full permission graph.
func (c *Client) UpdateCollectionGraph(ctx context.Context, graph PermissionGraph) error {
	return c.do(ctx, "PUT", "collection/graph", graph, nil, nil)
}

// GrantCollectionPermission performs the read-merge-write cycle for a single
// grant.
func (c *Client) GrantCollectionPermission(ctx context.Context, groupID, collectionID int, level PermissionLevel) error {
	c.logger.Info("granting collection permission",
		zap.Int("group_id", groupID),
		zap.Int("collection_id", collectionID),
		zap.String("level", string(level)),
	)

	graph, err := c.CollectionGraph(ctx)
	if err != nil {
		return err
	}
	return c.UpdateCollectionGraph(ctx, graph.Grant(groupID, collectionID, level))
}

// DataPermissionGraph is the group-id -> database-id -> permissions mapping
// served by /api/permissions/graph. Entries for databases we do not touch are
// kept as raw JSON so a write-back never degrades another group's grants.
type DataPermissionGraph struct {
	Revision int                                   `json:"revision"`
	Groups   map[string]map[string]json.RawMessage `json:"groups"`
}

// unrestrictedAccess is the payload Metabase expects for a full data grant on
// a database.
var unrestrictedAccess = json.RawMessage(`{"data":{"schemas":"all","native":"write"}}`)

// GrantUnrestricted returns a copy of the graph with the group given full
// access to the database.
func (g DataPermissionGraph) GrantUnrestricted(groupID, databaseID int) DataPermissionGraph {
	next := DataPermissionGraph{
		Revision: g.Revision,
		Groups:   make(map[string]map[string]json.RawMessage, len(g.Groups)+1),
	}
	for group, grants := range g.Groups {
		copied := make(map[string]json.RawMessage, len(grants))
		for database, grant := range grants {
			copied[database] = grant
		}
		next.Groups[group] = copied
	}

	group := strconv.Itoa(groupID)
	if next.Groups[group] == nil {
		next.Groups[group] = make(map[string]json.RawMessage, 1)
	}
	next.Groups[group][strconv.Itoa(databaseID)] = unrestrictedAccess
	return next
}

// DataGraph fetches the current data permission graph.
func (c *Client) DataGraph(ctx context.Context) (DataPermissionGraph, error) {
	var out DataPermissionGraph
	if err := c.do(ctx, "GET", "permissions/graph", nil, nil, &out); err != nil {
		return DataPermissionGraph{}, err
	}
	return out, nil
}

// UpdateDataGraph writes back a full data permission graph.
func (c *Client) UpdateDataGraph(ctx context.Context, graph DataPermissionGraph) error {
	return c.do(ctx, "PUT", "permissions/graph", graph, nil, nil)
}

// GrantDatabaseAccess gives the group full access to the database via the
// same read-merge-write cycle as collection grants.
func (c *Client) GrantDatabaseAccess(ctx context.Context, groupID, databaseID int) error {
	c.logger.Info("granting database access",
		zap.Int("group_id", groupID),
		zap.Int("database_id", databaseID),
	)

	graph, err := c.DataGraph(ctx)
	if err != nil {
		return err
	}
	return c.UpdateDataGraph(ctx, graph.GrantUnrestricted(groupID, databaseID))
}
