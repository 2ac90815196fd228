package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/quartzbyte/embedview/domains/users/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]service.User
	byEmail map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.User), byEmail: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) EnsureByEmail(ctx context.Context, u service.User) (service.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byEmail[u.Email]; ok {
		existing := r.byID[id]
		if u.DisplayName != nil {
			existing.DisplayName = u.DisplayName
			existing.UpdatedAt = u.UpdatedAt
			r.byID[id] = existing
		}
		return existing, nil
	}

	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return u, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok || !u.Active {
		return service.User{}, service.ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (service.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return service.User{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	u.MetabaseUserID = &metabaseUserID
	r.byID[id] = u
	return nil
}

var _ service.Repository = (*MemoryRepository)(nil)
