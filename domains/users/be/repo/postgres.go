package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quartzbyte/embedview/domains/users/be/service"
	"github.com/quartzbyte/embedview/platform/go/persistence"
)

// PostgresRepository implements the user repository over the shared persistence layer.
type PostgresRepository struct {
	store *persistence.UserStore
}

// NewPostgresRepository constructs a repository backed by UserStore.
func NewPostgresRepository(store *persistence.UserStore) *PostgresRepository {
	if store == nil {
		panic("user store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) EnsureByEmail(ctx context.Context, u service.User) (service.User, error) {
	rec, err := r.store.EnsureByEmail(ctx, toRecord(u))
	if err != nil {
		return service.User{}, err
	}
	return toServiceUser(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.User, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.User{}, mapNotFound(err)
	}
	return toServiceUser(rec), nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (service.User, error) {
	rec, err := r.store.GetByEmail(ctx, email)
	if err != nil {
		return service.User{}, mapNotFound(err)
	}
	return toServiceUser(rec), nil
}

func (r *PostgresRepository) LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error {
	return r.store.LinkMetabaseUser(ctx, id, metabaseUserID)
}

func toRecord(u service.User) persistence.UserRecord {
	return persistence.UserRecord{
		UserID:         u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		MetabaseUserID: u.MetabaseUserID,
		IsActive:       u.Active,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func toServiceUser(rec persistence.UserRecord) service.User {
	return service.User{
		ID:             rec.UserID,
		Email:          rec.Email,
		DisplayName:    rec.DisplayName,
		MetabaseUserID: rec.MetabaseUserID,
		Active:         rec.IsActive,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

var _ service.Repository = (*PostgresRepository)(nil)
