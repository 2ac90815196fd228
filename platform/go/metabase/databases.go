package metabase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Database is a Metabase database connection.
type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// DatabaseConn describes a connection to register with Metabase.
type DatabaseConn struct {
	Name     string
	Engine   string
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
}

// AddDatabase registers a database connection with hourly metadata sync.
func (c *Client) AddDatabase(ctx context.Context, conn DatabaseConn) (Database, error) {
	c.logger.Info("adding database", zap.String("name", conn.Name))

	body := map[string]interface{}{
		"name":   conn.Name,
		"engine": conn.Engine,
		"details": map[string]interface{}{
			"host":           conn.Host,
			"port":           conn.Port,
			"dbname":         conn.DBName,
			"user":           conn.User,
			"password":       conn.Password,
			"ssl":            false,
			"tunnel-enabled": false,
		},
		"auto_run_queries": true,
		"is_full_sync":     true,
		"schedules": map[string]interface{}{
			"metadata_sync":      map[string]string{"schedule_type": "hourly"},
			"cache_field_values": map[string]string{"schedule_type": "daily"},
		},
	}

	var out Database
	if err := c.do(ctx, "POST", "database", body, nil, &out); err != nil {
		return Database{}, err
	}
	return out, nil
}

// ListDatabases lists registered database connections.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "GET", "database", nil, nil, &raw); err != nil {
		return nil, err
	}
	var out []Database
	if err := unwrapList(raw, &out); err != nil {
		return nil, fmt.Errorf("decode database list: %w", err)
	}
	return out, nil
}

// SyncDatabaseSchema triggers a schema sync for one database connection.
func (c *Client) SyncDatabaseSchema(ctx context.Context, databaseID int) error {
	c.logger.Info("syncing database schema", zap.Int("database_id", databaseID))
	return c.do(ctx, "POST", fmt.Sprintf("database/%d/sync_schema", databaseID), nil, nil, nil)
}
