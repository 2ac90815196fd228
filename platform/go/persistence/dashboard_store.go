package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRecord mirrors one external Metabase dashboard.
// (workspace_id, metabase_dashboard_id) is unique so repeated discovery
// passes can never import the same dashboard twice.
type DashboardRecord struct {
	DashboardID         uuid.UUID `db:"dashboard_id"`
	WorkspaceID         uuid.UUID `db:"workspace_id"`
	MetabaseDashboardID int       `db:"metabase_dashboard_id"`
	Name                string    `db:"name"`
	Description         *string   `db:"description"`
	IsPublic            bool      `db:"is_public"`
	Snapshot            []byte    `db:"snapshot"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// DashboardStore provides access to the dashboards table.
type DashboardStore struct {
	pool *pgxpool.Pool
}

// NewDashboardStore creates a store; assumes Bootstrap already created the table.
func NewDashboardStore(pool *pgxpool.Pool) (*DashboardStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DashboardStore{pool: pool}, nil
}

const dashboardColumns = `dashboard_id, workspace_id, metabase_dashboard_id,
    name, description, is_public, snapshot, created_at, updated_at`

// Create inserts one dashboard row.
func (s *DashboardStore) Create(ctx context.Context, rec DashboardRecord) (DashboardRecord, error) {
	if rec.DashboardID == uuid.Nil {
		return DashboardRecord{}, errors.New("dashboard id is required")
	}

	query := `
        INSERT INTO dashboards (
            dashboard_id, workspace_id, metabase_dashboard_id,
            name, description, is_public, snapshot, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
        RETURNING ` + dashboardColumns

	row := s.pool.QueryRow(ctx, query,
		rec.DashboardID, rec.WorkspaceID, rec.MetabaseDashboardID,
		rec.Name, rec.Description, rec.IsPublic, rec.Snapshot, rec.CreatedAt,
	)
	return scanDashboardRecord(row)
}

// Get fetches a dashboard by local id.
func (s *DashboardStore) Get(ctx context.Context, id uuid.UUID) (DashboardRecord, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE dashboard_id = $1`
	return scanDashboardRecord(s.pool.QueryRow(ctx, query, id))
}

// FindByExternalID looks up the local mirror of one external dashboard.
func (s *DashboardStore) FindByExternalID(ctx context.Context, workspaceID uuid.UUID, metabaseDashboardID int) (DashboardRecord, error) {
	query := `SELECT ` + dashboardColumns + `
        FROM dashboards WHERE workspace_id = $1 AND metabase_dashboard_id = $2`
	return scanDashboardRecord(s.pool.QueryRow(ctx, query, workspaceID, metabaseDashboardID))
}

// ListByWorkspace returns all dashboards of one workspace, oldest first.
func (s *DashboardStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]DashboardRecord, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE workspace_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DashboardRecord
	for rows.Next() {
		rec, err := scanDashboardRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ApplyDiscovered commits one reconciliation pass's staged inserts and
// renames as a single transaction. ON CONFLICT DO NOTHING keeps the pass
// idempotent when discovery raced a concurrent import.
func (s *DashboardStore) ApplyDiscovered(ctx context.Context, inserts []DashboardRecord, renames []DashboardRecord) error {
	if len(inserts) == 0 && len(renames) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	insert := `
        INSERT INTO dashboards (
            dashboard_id, workspace_id, metabase_dashboard_id,
            name, description, is_public, snapshot, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
        ON CONFLICT (workspace_id, metabase_dashboard_id) DO NOTHING`
	for _, rec := range inserts {
		if _, err := tx.Exec(ctx, insert,
			rec.DashboardID, rec.WorkspaceID, rec.MetabaseDashboardID,
			rec.Name, rec.Description, rec.IsPublic, rec.Snapshot, rec.CreatedAt,
		); err != nil {
			return err
		}
	}

	rename := `
        UPDATE dashboards SET name = $3, snapshot = $4, updated_at = $5
        WHERE workspace_id = $1 AND metabase_dashboard_id = $2`
	now := time.Now().UTC()
	for _, rec := range renames {
		if _, err := tx.Exec(ctx, rename,
			rec.WorkspaceID, rec.MetabaseDashboardID, rec.Name, rec.Snapshot, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func scanDashboardRecord(row rowScanner) (DashboardRecord, error) {
	var rec DashboardRecord
	err := row.Scan(
		&rec.DashboardID, &rec.WorkspaceID, &rec.MetabaseDashboardID,
		&rec.Name, &rec.Description, &rec.IsPublic, &rec.Snapshot,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return DashboardRecord{}, err
	}
	return rec, nil
}
