package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord represents one application user row. No credentials are stored
// here; authentication is delegated entirely to the identity provider.
type UserRecord struct {
	UserID         uuid.UUID `db:"user_id"`
	Email          string    `db:"email"`
	DisplayName    *string   `db:"display_name"`
	MetabaseUserID *int      `db:"metabase_user_id"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// UserStore provides access to the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a store; assumes Bootstrap already created the table.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

const userColumns = `user_id, email, display_name, metabase_user_id, is_active, created_at, updated_at`

// EnsureByEmail inserts the user when absent and returns the stored row
// either way. Display name is refreshed on conflict so renames at the
// identity provider flow through.
func (s *UserStore) EnsureByEmail(ctx context.Context, rec UserRecord) (UserRecord, error) {
	if rec.UserID == uuid.Nil {
		return UserRecord{}, errors.New("user id is required")
	}
	if rec.Email == "" {
		return UserRecord{}, errors.New("email is required")
	}

	query := `
        INSERT INTO users (user_id, email, display_name, metabase_user_id, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $5)
        ON CONFLICT (email) DO UPDATE
            SET display_name = COALESCE(EXCLUDED.display_name, users.display_name),
                updated_at   = EXCLUDED.updated_at
        RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query, rec.UserID, rec.Email, rec.DisplayName, rec.MetabaseUserID, time.Now().UTC())
	return scanUserRecord(row)
}

// Get fetches an active user by id.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 AND is_active = TRUE`
	return scanUserRecord(s.pool.QueryRow(ctx, query, id))
}

// GetByEmail fetches an active user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active = TRUE`
	return scanUserRecord(s.pool.QueryRow(ctx, query, email))
}

// LinkMetabaseUser records the user's external Metabase identity.
func (s *UserStore) LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error {
	query := `UPDATE users SET metabase_user_id = $2, updated_at = $3 WHERE user_id = $1`
	_, err := s.pool.Exec(ctx, query, id, metabaseUserID, time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRecord(row rowScanner) (UserRecord, error) {
	var rec UserRecord
	err := row.Scan(
		&rec.UserID, &rec.Email, &rec.DisplayName, &rec.MetabaseUserID,
		&rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}
