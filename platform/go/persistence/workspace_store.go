package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkspaceRecord represents one workspace row. The three metabase ids are
// set together by provisioning or not at all; readers never observe a
// partially linked active workspace.
type WorkspaceRecord struct {
	WorkspaceID          uuid.UUID `db:"workspace_id"`
	Name                 string    `db:"name"`
	Description          *string   `db:"description"`
	OwnerID              uuid.UUID `db:"owner_id"`
	MetabaseCollectionID *int      `db:"metabase_collection_id"`
	MetabaseGroupID      *int      `db:"metabase_group_id"`
	MetabaseDatabaseID   *int      `db:"metabase_database_id"`
	IsActive             bool      `db:"is_active"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// MembershipRecord ties a user to a workspace with a role.
type MembershipRecord struct {
	MembershipID uuid.UUID `db:"membership_id"`
	WorkspaceID  uuid.UUID `db:"workspace_id"`
	UserID       uuid.UUID `db:"user_id"`
	Role         string    `db:"role"`
	JoinedAt     time.Time `db:"joined_at"`
}

// WorkspaceStore provides access to the workspaces and workspace_members tables.
type WorkspaceStore struct {
	pool *pgxpool.Pool
}

// NewWorkspaceStore creates a store; assumes Bootstrap already created the tables.
func NewWorkspaceStore(pool *pgxpool.Pool) (*WorkspaceStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &WorkspaceStore{pool: pool}, nil
}

const workspaceColumns = `workspace_id, name, description, owner_id,
    metabase_collection_id, metabase_group_id, metabase_database_id,
    is_active, created_at, updated_at`

// CreateWithOwner inserts the workspace row and the owner membership row in
// one transaction. Provisioning relies on this being atomic: either both
// exist afterwards or neither does.
func (s *WorkspaceStore) CreateWithOwner(ctx context.Context, rec WorkspaceRecord, member MembershipRecord) (WorkspaceRecord, error) {
	if rec.WorkspaceID == uuid.Nil {
		return WorkspaceRecord{}, errors.New("workspace id is required")
	}
	if member.WorkspaceID != rec.WorkspaceID {
		return WorkspaceRecord{}, errors.New("membership workspace mismatch")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	insertWorkspace := `
        INSERT INTO workspaces (
            workspace_id, name, description, owner_id,
            metabase_collection_id, metabase_group_id, metabase_database_id,
            is_active, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,$8,$8)
        RETURNING ` + workspaceColumns

	row := tx.QueryRow(ctx, insertWorkspace,
		rec.WorkspaceID, rec.Name, rec.Description, rec.OwnerID,
		rec.MetabaseCollectionID, rec.MetabaseGroupID, rec.MetabaseDatabaseID,
		rec.CreatedAt,
	)
	out, err := scanWorkspaceRecord(row)
	if err != nil {
		return WorkspaceRecord{}, err
	}

	insertMember := `
        INSERT INTO workspace_members (membership_id, workspace_id, user_id, role, joined_at)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err := tx.Exec(ctx, insertMember,
		member.MembershipID, member.WorkspaceID, member.UserID, member.Role, member.JoinedAt,
	); err != nil {
		return WorkspaceRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return WorkspaceRecord{}, err
	}
	return out, nil
}

// Get fetches an active workspace by id.
func (s *WorkspaceStore) Get(ctx context.Context, id uuid.UUID) (WorkspaceRecord, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE workspace_id = $1 AND is_active = TRUE`
	return scanWorkspaceRecord(s.pool.QueryRow(ctx, query, id))
}

// ListForUser returns active workspaces the user owns or is a member of,
// oldest first, deduplicated.
func (s *WorkspaceStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]WorkspaceRecord, error) {
	query := `
        SELECT DISTINCT w.workspace_id, w.name, w.description, w.owner_id,
            w.metabase_collection_id, w.metabase_group_id, w.metabase_database_id,
            w.is_active, w.created_at, w.updated_at
        FROM workspaces w
        LEFT JOIN workspace_members m ON m.workspace_id = w.workspace_id
        WHERE w.is_active = TRUE AND (w.owner_id = $1 OR m.user_id = $1)
        ORDER BY w.created_at`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []WorkspaceRecord
	for rows.Next() {
		rec, err := scanWorkspaceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListActive returns every active workspace; the reconciliation sweep uses this.
func (s *WorkspaceStore) ListActive(ctx context.Context) ([]WorkspaceRecord, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE is_active = TRUE ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []WorkspaceRecord
	for rows.Next() {
		rec, err := scanWorkspaceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Update persists mutable workspace fields.
func (s *WorkspaceStore) Update(ctx context.Context, rec WorkspaceRecord) (WorkspaceRecord, error) {
	query := `
        UPDATE workspaces
        SET name = $2, description = $3, updated_at = $4
        WHERE workspace_id = $1 AND is_active = TRUE
        RETURNING ` + workspaceColumns

	row := s.pool.QueryRow(ctx, query, rec.WorkspaceID, rec.Name, rec.Description, time.Now().UTC())
	return scanWorkspaceRecord(row)
}

// SoftDelete clears the active flag; the row is kept because external
// resources may still reference it.
func (s *WorkspaceStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE workspaces SET is_active = FALSE, updated_at = $2 WHERE workspace_id = $1`
	tag, err := s.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetMembership returns the membership row for (workspace, user), if any.
func (s *WorkspaceStore) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (MembershipRecord, error) {
	query := `SELECT membership_id, workspace_id, user_id, role, joined_at
        FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`

	var rec MembershipRecord
	err := s.pool.QueryRow(ctx, query, workspaceID, userID).
		Scan(&rec.MembershipID, &rec.WorkspaceID, &rec.UserID, &rec.Role, &rec.JoinedAt)
	if err != nil {
		return MembershipRecord{}, err
	}
	return rec, nil
}

func scanWorkspaceRecord(row rowScanner) (WorkspaceRecord, error) {
	var rec WorkspaceRecord
	err := row.Scan(
		&rec.WorkspaceID, &rec.Name, &rec.Description, &rec.OwnerID,
		&rec.MetabaseCollectionID, &rec.MetabaseGroupID, &rec.MetabaseDatabaseID,
		&rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return rec, nil
}
