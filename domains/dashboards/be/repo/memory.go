package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quartzbyte/embedview/domains/dashboards/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]service.Dashboard
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Dashboard)}
}

func (r *MemoryRepository) Create(ctx context.Context, d service.Dashboard) (service.Dashboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[d.ID] = d
	return d, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return service.Dashboard{}, service.ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepository) FindByExternalID(ctx context.Context, workspaceID uuid.UUID, metabaseDashboardID int) (service.Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.byID {
		if d.WorkspaceID == workspaceID && d.MetabaseDashboardID == metabaseDashboardID {
			return d, nil
		}
	}
	return service.Dashboard{}, service.ErrNotFound
}

func (r *MemoryRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]service.Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Dashboard, 0)
	for _, d := range r.byID {
		if d.WorkspaceID == workspaceID {
			items = append(items, d)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) ApplyDiscovered(ctx context.Context, inserts, renames []service.Dashboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range inserts {
		if r.hasExternal(d.WorkspaceID, d.MetabaseDashboardID) {
			continue
		}
		r.byID[d.ID] = d
	}
	for _, d := range renames {
		for id, existing := range r.byID {
			if existing.WorkspaceID == d.WorkspaceID && existing.MetabaseDashboardID == d.MetabaseDashboardID {
				existing.Name = d.Name
				existing.Snapshot = d.Snapshot
				existing.UpdatedAt = d.UpdatedAt
				r.byID[id] = existing
			}
		}
	}
	return nil
}

func (r *MemoryRepository) hasExternal(workspaceID uuid.UUID, metabaseDashboardID int) bool {
	for _, d := range r.byID {
		if d.WorkspaceID == workspaceID && d.MetabaseDashboardID == metabaseDashboardID {
			return true
		}
	}
	return false
}

var _ service.Repository = (*MemoryRepository)(nil)
