package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quartzbyte/embedview/domains/workspaces/be/service"
	"github.com/quartzbyte/embedview/platform/go/persistence"
)

// PostgresRepository implements the workspace repository over the shared persistence layer.
type PostgresRepository struct {
	store *persistence.WorkspaceStore
}

// NewPostgresRepository constructs a repository backed by WorkspaceStore.
func NewPostgresRepository(store *persistence.WorkspaceStore) *PostgresRepository {
	if store == nil {
		panic("workspace store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) CreateWithOwner(ctx context.Context, w service.Workspace, m service.Membership) (service.Workspace, error) {
	rec, err := r.store.CreateWithOwner(ctx, toRecord(w), toMemberRecord(m))
	if err != nil {
		return service.Workspace{}, err
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Workspace{}, mapNotFound(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]service.Workspace, error) {
	recs, err := r.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toServiceWorkspaces(recs), nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]service.Workspace, error) {
	recs, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return toServiceWorkspaces(recs), nil
}

func (r *PostgresRepository) Update(ctx context.Context, w service.Workspace) (service.Workspace, error) {
	rec, err := r.store.Update(ctx, toRecord(w))
	if err != nil {
		return service.Workspace{}, mapNotFound(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return mapNotFound(r.store.SoftDelete(ctx, id))
}

func (r *PostgresRepository) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (service.Membership, error) {
	rec, err := r.store.GetMembership(ctx, workspaceID, userID)
	if err != nil {
		return service.Membership{}, mapNotFound(err)
	}
	return service.Membership{
		ID:          rec.MembershipID,
		WorkspaceID: rec.WorkspaceID,
		UserID:      rec.UserID,
		Role:        rec.Role,
		JoinedAt:    rec.JoinedAt,
	}, nil
}

func toRecord(w service.Workspace) persistence.WorkspaceRecord {
	return persistence.WorkspaceRecord{
		WorkspaceID:          w.ID,
		Name:                 w.Name,
		Description:          w.Description,
		OwnerID:              w.OwnerID,
		MetabaseCollectionID: w.MetabaseCollectionID,
		MetabaseGroupID:      w.MetabaseGroupID,
		MetabaseDatabaseID:   w.MetabaseDatabaseID,
		IsActive:             w.Active,
		CreatedAt:            w.CreatedAt,
		UpdatedAt:            w.UpdatedAt,
	}
}

func toMemberRecord(m service.Membership) persistence.MembershipRecord {
	return persistence.MembershipRecord{
		MembershipID: m.ID,
		WorkspaceID:  m.WorkspaceID,
		UserID:       m.UserID,
		Role:         m.Role,
		JoinedAt:     m.JoinedAt,
	}
}

func toServiceWorkspace(rec persistence.WorkspaceRecord) service.Workspace {
	return service.Workspace{
		ID:                   rec.WorkspaceID,
		Name:                 rec.Name,
		Description:          rec.Description,
		OwnerID:              rec.OwnerID,
		MetabaseCollectionID: rec.MetabaseCollectionID,
		MetabaseGroupID:      rec.MetabaseGroupID,
		MetabaseDatabaseID:   rec.MetabaseDatabaseID,
		Active:               rec.IsActive,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
}

func toServiceWorkspaces(recs []persistence.WorkspaceRecord) []service.Workspace {
	out := make([]service.Workspace, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceWorkspace(rec))
	}
	return out
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

var _ service.Repository = (*PostgresRepository)(nil)
