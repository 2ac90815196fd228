package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// inMemoryRepo is a minimal in-memory impl of Repository for tests.
type inMemoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]User
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{byEmail: make(map[string]User)}
}

func (r *inMemoryRepo) EnsureByEmail(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byEmail[u.Email]; ok {
		return existing, nil
	}
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *inMemoryRepo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *inMemoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *inMemoryRepo) LinkMetabaseUser(ctx context.Context, id uuid.UUID, metabaseUserID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, u := range r.byEmail {
		if u.ID == id {
			u.MetabaseUserID = &metabaseUserID
			r.byEmail[email] = u
			return nil
		}
	}
	return ErrNotFound
}

func TestEnsureIsIdempotentPerEmail(t *testing.T) {
	svc := New(newInMemoryRepo())

	first, err := svc.Ensure(context.Background(), EnsureInput{Email: "dev@example.com"})
	require.NoError(t, err)
	require.True(t, first.Active)

	second, err := svc.Ensure(context.Background(), EnsureInput{Email: "dev@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same email must resolve to the same user")
}

func TestEnsureRequiresEmail(t *testing.T) {
	svc := New(newInMemoryRepo())
	_, err := svc.Ensure(context.Background(), EnsureInput{})
	require.Error(t, err)
}

func TestLinkMetabaseUser(t *testing.T) {
	svc := New(newInMemoryRepo())

	u, err := svc.Ensure(context.Background(), EnsureInput{Email: "dev@example.com"})
	require.NoError(t, err)
	require.Nil(t, u.MetabaseUserID)

	require.NoError(t, svc.LinkMetabaseUser(context.Background(), u.ID, 42))

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MetabaseUserID)
	require.Equal(t, 42, *got.MetabaseUserID)
}
