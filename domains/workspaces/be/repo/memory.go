package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quartzbyte/embedview/domains/workspaces/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]service.Workspace
	memberships map[uuid.UUID][]service.Membership
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:        make(map[uuid.UUID]service.Workspace),
		memberships: make(map[uuid.UUID][]service.Membership),
	}
}

func (r *MemoryRepository) CreateWithOwner(ctx context.Context, w service.Workspace, m service.Membership) (service.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[w.ID] = w
	r.memberships[w.ID] = append(r.memberships[w.ID], m)
	return w, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok || !w.Active {
		return service.Workspace{}, service.ErrNotFound
	}
	return w, nil
}

func (r *MemoryRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Workspace, 0)
	for _, w := range r.byID {
		if !w.Active {
			continue
		}
		if w.OwnerID == userID || r.isMember(w.ID, userID) {
			items = append(items, w)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Workspace, 0, len(r.byID))
	for _, w := range r.byID {
		if w.Active {
			items = append(items, w)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) Update(ctx context.Context, w service.Workspace) (service.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[w.ID]
	if !ok || !current.Active {
		return service.Workspace{}, service.ErrNotFound
	}
	r.byID[w.ID] = w
	return w, nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[id]
	if !ok || !w.Active {
		return service.ErrNotFound
	}
	w.Active = false
	r.byID[id] = w
	return nil
}

func (r *MemoryRepository) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (service.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.memberships[workspaceID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return service.Membership{}, service.ErrNotFound
}

func (r *MemoryRepository) isMember(workspaceID, userID uuid.UUID) bool {
	for _, m := range r.memberships[workspaceID] {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

var _ service.Repository = (*MemoryRepository)(nil)
