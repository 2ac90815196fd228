package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quartzbyte/embedview/platform/go/metabase"
	"github.com/quartzbyte/embedview/platform/go/metabase/embed"
)

// inMemoryRepo is a minimal in-memory impl of Repository for tests.
type inMemoryRepo struct {
	mu      sync.Mutex
	data    map[uuid.UUID]Workspace
	members map[uuid.UUID][]Membership
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{data: make(map[uuid.UUID]Workspace), members: make(map[uuid.UUID][]Membership)}
}

func (r *inMemoryRepo) CreateWithOwner(ctx context.Context, w Workspace, m Membership) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[w.ID] = w
	r.members[w.ID] = append(r.members[w.ID], m)
	return w, nil
}

func (r *inMemoryRepo) Get(ctx context.Context, id uuid.UUID) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok || !w.Active {
		return Workspace{}, ErrNotFound
	}
	return w, nil
}

func (r *inMemoryRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Workspace
	for _, w := range r.data {
		if !w.Active {
			continue
		}
		if w.OwnerID == userID {
			out = append(out, w)
			continue
		}
		for _, m := range r.members[w.ID] {
			if m.UserID == userID {
				out = append(out, w)
				break
			}
		}
	}
	return out, nil
}

func (r *inMemoryRepo) ListActive(ctx context.Context) ([]Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Workspace
	for _, w := range r.data {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *inMemoryRepo) Update(ctx context.Context, w Workspace) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[w.ID]; !ok {
		return Workspace{}, ErrNotFound
	}
	r.data[w.ID] = w
	return w, nil
}

func (r *inMemoryRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok || !w.Active {
		return ErrNotFound
	}
	w.Active = false
	r.data[id] = w
	return nil
}

func (r *inMemoryRepo) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[workspaceID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return Membership{}, ErrNotFound
}

// stubProvisioner persists straight through the repo.
type stubProvisioner struct {
	repo *inMemoryRepo
	err  error
}

func (p *stubProvisioner) Provision(ctx context.Context, req ProvisionRequest) (Workspace, error) {
	if p.err != nil {
		return Workspace{}, p.err
	}
	collection, group := 10, 20
	now := time.Now().UTC()
	w := Workspace{
		ID:                   req.WorkspaceID,
		Name:                 req.Name,
		Description:          req.Description,
		OwnerID:              req.OwnerID,
		MetabaseCollectionID: &collection,
		MetabaseGroupID:      &group,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return p.repo.CreateWithOwner(ctx, w, Membership{
		ID:          uuid.New(),
		WorkspaceID: req.WorkspaceID,
		UserID:      req.OwnerID,
		Role:        RoleOwner,
		JoinedAt:    now,
	})
}

// stubGateway records external collection/group calls.
type stubGateway struct {
	updateErr          error
	updatedCollections []int
	updatedNames       []*string
	deletedCollections []int
	deletedGroups      []int
	deleteErr          error
}

func (g *stubGateway) UpdateCollection(ctx context.Context, id int, name, description *string) (metabase.Collection, error) {
	if g.updateErr != nil {
		return metabase.Collection{}, g.updateErr
	}
	g.updatedCollections = append(g.updatedCollections, id)
	g.updatedNames = append(g.updatedNames, name)
	return metabase.Collection{ID: id}, nil
}

func (g *stubGateway) DeleteCollection(ctx context.Context, id int) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deletedCollections = append(g.deletedCollections, id)
	return nil
}

func (g *stubGateway) DeleteGroup(ctx context.Context, id int) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deletedGroups = append(g.deletedGroups, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *inMemoryRepo, *stubGateway) {
	t.Helper()
	repo := newInMemoryRepo()
	gw := &stubGateway{}
	issuer := embed.NewIssuer(embed.Config{Secret: "0123456789abcdef0123456789abcdef"})
	svc := New(repo, &stubProvisioner{repo: repo}, gw, issuer, zap.NewNop())
	return svc, repo, gw
}

func mustCreate(t *testing.T, svc *Service, owner uuid.UUID) Workspace {
	t.Helper()
	w, err := svc.Create(context.Background(), CreateInput{Name: "Acme", OwnerID: owner})
	require.NoError(t, err)
	return w
}

func TestCreateDelegatesToProvisioner(t *testing.T) {
	svc, repo, _ := newTestService(t)
	owner := uuid.New()

	w := mustCreate(t, svc, owner)
	require.NotNil(t, w.MetabaseCollectionID)
	require.NotNil(t, w.MetabaseGroupID)

	m, err := repo.GetMembership(context.Background(), w.ID, owner)
	require.NoError(t, err)
	require.Equal(t, RoleOwner, m.Role)
}

func TestCreateFailureLeavesNothingBehind(t *testing.T) {
	repo := newInMemoryRepo()
	gw := &stubGateway{}
	issuer := embed.NewIssuer(embed.Config{Secret: "0123456789abcdef0123456789abcdef"})
	svc := New(repo, &stubProvisioner{repo: repo, err: errors.New("boom")}, gw, issuer, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateInput{Name: "Acme", OwnerID: uuid.New()})
	require.Error(t, err)

	all, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestGetEnforcesMembership(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()
	stranger := uuid.New()

	w := mustCreate(t, svc, owner)

	_, err := svc.Get(context.Background(), w.ID, owner)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), w.ID, stranger)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(context.Background(), uuid.New(), owner)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMirrorsToCollectionAndIsOwnerOnly(t *testing.T) {
	svc, _, gw := newTestService(t)
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	name := "Acme Corp"
	updated, err := svc.Update(context.Background(), w.ID, owner, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", updated.Name)
	require.Equal(t, []int{*w.MetabaseCollectionID}, gw.updatedCollections)

	_, err = svc.Update(context.Background(), w.ID, uuid.New(), UpdateInput{Name: &name})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateTreatsEmptyNameAsUnset(t *testing.T) {
	svc, _, gw := newTestService(t)
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	empty := ""
	updated, err := svc.Update(context.Background(), w.ID, owner, UpdateInput{Name: &empty})
	require.NoError(t, err)
	require.Equal(t, "Acme", updated.Name)
	require.Empty(t, gw.updatedCollections, "nothing changed, nothing to mirror")

	desc := "quarterly numbers"
	_, err = svc.Update(context.Background(), w.ID, owner, UpdateInput{Name: &empty, Description: &desc})
	require.NoError(t, err)
	require.Equal(t, []int{*w.MetabaseCollectionID}, gw.updatedCollections)
	require.Nil(t, gw.updatedNames[0], "the collection must keep its name")

	got, err := svc.Get(context.Background(), w.ID, owner)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)
	require.Equal(t, &desc, got.Description)
}

func TestUpdateAbortsWhenCollectionRejects(t *testing.T) {
	svc, _, gw := newTestService(t)
	gw.updateErr = errors.New("metabase said no")
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	name := "Acme Corp"
	_, err := svc.Update(context.Background(), w.ID, owner, UpdateInput{Name: &name})
	require.Error(t, err)

	got, err := svc.Get(context.Background(), w.ID, owner)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name, "local name must not change when the mirror write fails")
}

func TestDeleteSoftDeletesAndTearsDownExternal(t *testing.T) {
	svc, _, gw := newTestService(t)
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	require.NoError(t, svc.Delete(context.Background(), w.ID, owner))
	require.Equal(t, []int{*w.MetabaseCollectionID}, gw.deletedCollections)
	require.Equal(t, []int{*w.MetabaseGroupID}, gw.deletedGroups)

	_, err := svc.Get(context.Background(), w.ID, owner)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSucceedsWhenExternalTeardownFails(t *testing.T) {
	svc, _, gw := newTestService(t)
	gw.deleteErr = errors.New("metabase down")
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	require.NoError(t, svc.Delete(context.Background(), w.ID, owner))

	_, err := svc.Get(context.Background(), w.ID, owner)
	require.ErrorIs(t, err, ErrNotFound, "local soft delete wins even when teardown fails")
}

func TestCollectionEmbedURL(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()
	w := mustCreate(t, svc, owner)

	token, err := svc.CollectionEmbedURL(context.Background(), w.ID, owner, time.Minute)
	require.NoError(t, err)
	require.Contains(t, token.Path, "/embed/collection/")

	_, err = svc.CollectionEmbedURL(context.Background(), w.ID, uuid.New(), time.Minute)
	require.ErrorIs(t, err, ErrForbidden)
}
