package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, store *UserStore) UserRecord {
	t.Helper()
	u, err := store.EnsureByEmail(context.Background(), UserRecord{
		UserID:    uuid.New(),
		Email:     uuid.NewString() + "@example.com",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return u
}

func workspaceFixture(owner uuid.UUID) (WorkspaceRecord, MembershipRecord) {
	collection, group := 10, 20
	id := uuid.New()
	now := time.Now().UTC()
	rec := WorkspaceRecord{
		WorkspaceID:          id,
		Name:                 "Acme",
		OwnerID:              owner,
		MetabaseCollectionID: &collection,
		MetabaseGroupID:      &group,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	member := MembershipRecord{
		MembershipID: uuid.New(),
		WorkspaceID:  id,
		UserID:       owner,
		Role:         "owner",
		JoinedAt:     now,
	}
	return rec, member
}

func TestWorkspaceCreateWithOwnerRoundTrip(t *testing.T) {
	pool := mustTestPool(t)
	ctx := context.Background()

	users, err := NewUserStore(pool)
	require.NoError(t, err)
	store, err := NewWorkspaceStore(pool)
	require.NoError(t, err)

	owner := seedUser(t, users)
	rec, member := workspaceFixture(owner.UserID)

	created, err := store.CreateWithOwner(ctx, rec, member)
	require.NoError(t, err)
	require.True(t, created.IsActive)

	got, err := store.Get(ctx, rec.WorkspaceID)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)
	require.Equal(t, 10, *got.MetabaseCollectionID)

	m, err := store.GetMembership(ctx, rec.WorkspaceID, owner.UserID)
	require.NoError(t, err)
	require.Equal(t, "owner", m.Role)

	listed, err := store.ListForUser(ctx, owner.UserID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestWorkspaceCreateWithOwnerIsAtomic(t *testing.T) {
	pool := mustTestPool(t)
	ctx := context.Background()

	users, err := NewUserStore(pool)
	require.NoError(t, err)
	store, err := NewWorkspaceStore(pool)
	require.NoError(t, err)

	owner := seedUser(t, users)
	rec, member := workspaceFixture(owner.UserID)
	// Membership referencing a user that does not exist violates the FK and
	// must roll the workspace insert back with it.
	member.UserID = uuid.New()

	_, err = store.CreateWithOwner(ctx, rec, member)
	require.Error(t, err)

	_, err = store.Get(ctx, rec.WorkspaceID)
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestWorkspaceSoftDeleteHidesFromReaders(t *testing.T) {
	pool := mustTestPool(t)
	ctx := context.Background()

	users, err := NewUserStore(pool)
	require.NoError(t, err)
	store, err := NewWorkspaceStore(pool)
	require.NoError(t, err)

	owner := seedUser(t, users)
	rec, member := workspaceFixture(owner.UserID)
	_, err = store.CreateWithOwner(ctx, rec, member)
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(ctx, rec.WorkspaceID))

	_, err = store.Get(ctx, rec.WorkspaceID)
	require.ErrorIs(t, err, pgx.ErrNoRows)

	require.ErrorIs(t, store.SoftDelete(ctx, uuid.New()), pgx.ErrNoRows)
}

func TestDashboardApplyDiscoveredIsIdempotent(t *testing.T) {
	pool := mustTestPool(t)
	ctx := context.Background()

	users, err := NewUserStore(pool)
	require.NoError(t, err)
	workspaces, err := NewWorkspaceStore(pool)
	require.NoError(t, err)
	dashboards, err := NewDashboardStore(pool)
	require.NoError(t, err)

	owner := seedUser(t, users)
	rec, member := workspaceFixture(owner.UserID)
	_, err = workspaces.CreateWithOwner(ctx, rec, member)
	require.NoError(t, err)

	now := time.Now().UTC()
	discovered := DashboardRecord{
		DashboardID:         uuid.New(),
		WorkspaceID:         rec.WorkspaceID,
		MetabaseDashboardID: 99,
		Name:                "Sales",
		Snapshot:            []byte(`{"id":99}`),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	for i := 0; i < 3; i++ {
		// New surrogate id each pass, same external identity.
		discovered.DashboardID = uuid.New()
		require.NoError(t, dashboards.ApplyDiscovered(ctx, []DashboardRecord{discovered}, nil))
	}

	listed, err := dashboards.ListByWorkspace(ctx, rec.WorkspaceID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
