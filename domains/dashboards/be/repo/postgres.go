package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quartzbyte/embedview/domains/dashboards/be/service"
	"github.com/quartzbyte/embedview/platform/go/persistence"
)

// PostgresRepository implements the dashboard repository over the shared persistence layer.
type PostgresRepository struct {
	store *persistence.DashboardStore
}

// NewPostgresRepository constructs a repository backed by DashboardStore.
func NewPostgresRepository(store *persistence.DashboardStore) *PostgresRepository {
	if store == nil {
		panic("dashboard store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, d service.Dashboard) (service.Dashboard, error) {
	rec, err := r.store.Create(ctx, toRecord(d))
	if err != nil {
		return service.Dashboard{}, err
	}
	return toServiceDashboard(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Dashboard, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Dashboard{}, mapNotFound(err)
	}
	return toServiceDashboard(rec), nil
}

func (r *PostgresRepository) FindByExternalID(ctx context.Context, workspaceID uuid.UUID, metabaseDashboardID int) (service.Dashboard, error) {
	rec, err := r.store.FindByExternalID(ctx, workspaceID, metabaseDashboardID)
	if err != nil {
		return service.Dashboard{}, mapNotFound(err)
	}
	return toServiceDashboard(rec), nil
}

func (r *PostgresRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]service.Dashboard, error) {
	recs, err := r.store.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]service.Dashboard, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceDashboard(rec))
	}
	return out, nil
}

func (r *PostgresRepository) ApplyDiscovered(ctx context.Context, inserts, renames []service.Dashboard) error {
	return r.store.ApplyDiscovered(ctx, toRecords(inserts), toRecords(renames))
}

func toRecord(d service.Dashboard) persistence.DashboardRecord {
	return persistence.DashboardRecord{
		DashboardID:         d.ID,
		WorkspaceID:         d.WorkspaceID,
		MetabaseDashboardID: d.MetabaseDashboardID,
		Name:                d.Name,
		Description:         d.Description,
		IsPublic:            d.Public,
		Snapshot:            d.Snapshot,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func toRecords(ds []service.Dashboard) []persistence.DashboardRecord {
	out := make([]persistence.DashboardRecord, 0, len(ds))
	for _, d := range ds {
		out = append(out, toRecord(d))
	}
	return out
}

func toServiceDashboard(rec persistence.DashboardRecord) service.Dashboard {
	return service.Dashboard{
		ID:                  rec.DashboardID,
		WorkspaceID:         rec.WorkspaceID,
		MetabaseDashboardID: rec.MetabaseDashboardID,
		Name:                rec.Name,
		Description:         rec.Description,
		Public:              rec.IsPublic,
		Snapshot:            rec.Snapshot,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

var _ service.Repository = (*PostgresRepository)(nil)
