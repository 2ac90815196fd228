package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quartzbyte/embedview/platform/go/metabase"
	"github.com/quartzbyte/embedview/platform/go/metabase/embed"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("workspace not found")
	ErrForbidden      = errors.New("access to workspace denied")
	ErrNotProvisioned = errors.New("workspace has no linked collection")
)

// Role values for workspace memberships. Owner implies destructive rights.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Workspace represents the domain model for a tenant workspace. The three
// metabase ids are nil until provisioning links the external resources; an
// active workspace always has either all of them or none.
type Workspace struct {
	ID                   uuid.UUID
	Name                 string
	Description          *string
	OwnerID              uuid.UUID
	MetabaseCollectionID *int
	MetabaseGroupID      *int
	MetabaseDatabaseID   *int
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Membership ties a user to a workspace with a role.
type Membership struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Role        string
	JoinedAt    time.Time
}

// CreateInput represents the request to create and provision a workspace.
type CreateInput struct {
	Name                string
	Description         *string
	OwnerID             uuid.UUID
	OwnerMetabaseUserID *int
}

// UpdateInput represents mutable fields for a workspace.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Repository abstracts persistence.
type Repository interface {
	CreateWithOwner(ctx context.Context, w Workspace, m Membership) (Workspace, error)
	Get(ctx context.Context, id uuid.UUID) (Workspace, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Workspace, error)
	ListActive(ctx context.Context) ([]Workspace, error)
	Update(ctx context.Context, w Workspace) (Workspace, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (Membership, error)
}

// Gateway is the slice of the Metabase client the service needs for
// lifecycle operations outside provisioning.
type Gateway interface {
	UpdateCollection(ctx context.Context, id int, name, description *string) (metabase.Collection, error)
	DeleteCollection(ctx context.Context, id int) error
	DeleteGroup(ctx context.Context, id int) error
}

// EmbedIssuer mints signed embedding tokens.
type EmbedIssuer interface {
	Issue(resource embed.ResourceType, resourceID int, params map[string]interface{}, ttl time.Duration) (embed.Token, error)
}

// Service provides workspace lifecycle operations.
type Service struct {
	repo        Repository
	provisioner Provisioner
	gateway     Gateway
	issuer      EmbedIssuer
	logger      *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, provisioner Provisioner, gateway Gateway, issuer EmbedIssuer, logger *zap.Logger) *Service {
	if repo == nil {
		panic("workspaces repo is required")
	}
	if provisioner == nil {
		panic("workspaces provisioner is required")
	}
	if gateway == nil {
		panic("workspaces gateway is required")
	}
	if issuer == nil {
		panic("workspaces embed issuer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, provisioner: provisioner, gateway: gateway, issuer: issuer, logger: logger}
}

// Create provisions the external collection/group bundle and persists the
// workspace with its owner membership. On provisioning failure no local
// record exists.
func (s *Service) Create(ctx context.Context, input CreateInput) (Workspace, error) {
	if input.Name == "" {
		return Workspace{}, errors.New("workspace name is required")
	}
	if input.OwnerID == uuid.Nil {
		return Workspace{}, errors.New("workspace owner is required")
	}

	return s.provisioner.Provision(ctx, ProvisionRequest{
		WorkspaceID:         uuid.New(),
		Name:                input.Name,
		Description:         input.Description,
		OwnerID:             input.OwnerID,
		OwnerMetabaseUserID: input.OwnerMetabaseUserID,
	})
}

// List returns active workspaces the user owns or belongs to.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Workspace, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Get returns a workspace the user can access.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (Workspace, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Workspace{}, err
	}
	if err := s.checkAccess(ctx, w, userID); err != nil {
		return Workspace{}, err
	}
	return w, nil
}

// CheckAccess verifies the user owns or is a member of the workspace.
// Other domains use this for their own per-workspace authorization.
func (s *Service) CheckAccess(ctx context.Context, id, userID uuid.UUID) (Workspace, error) {
	return s.Get(ctx, id, userID)
}

func (s *Service) checkAccess(ctx context.Context, w Workspace, userID uuid.UUID) error {
	if w.OwnerID == userID {
		return nil
	}
	if _, err := s.repo.GetMembership(ctx, w.ID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	return nil
}

// Update modifies name/description. Owner only. Changes are mirrored to the
// linked collection so the external platform stays in step.
func (s *Service) Update(ctx context.Context, id, userID uuid.UUID, input UpdateInput) (Workspace, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Workspace{}, err
	}
	if current.OwnerID != userID {
		return Workspace{}, ErrForbidden
	}

	// An empty name means "leave it alone", locally and externally.
	name := input.Name
	if name != nil && *name == "" {
		name = nil
	}

	next := current
	if name != nil {
		next.Name = *name
	}
	if input.Description != nil {
		next.Description = input.Description
	}
	next.UpdatedAt = time.Now().UTC()

	if current.MetabaseCollectionID != nil && (name != nil || input.Description != nil) {
		if _, err := s.gateway.UpdateCollection(ctx, *current.MetabaseCollectionID, name, input.Description); err != nil {
			return Workspace{}, err
		}
	}

	return s.repo.Update(ctx, next)
}

// Delete soft-deletes the workspace and tears down its external resources.
// The external deletes are best-effort once the local record is inactive;
// the reconciler never resurrects an inactive workspace.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.OwnerID != userID {
		return ErrForbidden
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	if current.MetabaseCollectionID != nil {
		if err := s.gateway.DeleteCollection(ctx, *current.MetabaseCollectionID); err != nil {
			s.logger.Warn("workspace delete left external collection behind",
				zap.String("workspace_id", id.String()),
				zap.Int("collection_id", *current.MetabaseCollectionID),
				zap.Error(err),
			)
		}
	}
	if current.MetabaseGroupID != nil {
		if err := s.gateway.DeleteGroup(ctx, *current.MetabaseGroupID); err != nil {
			s.logger.Warn("workspace delete left external group behind",
				zap.String("workspace_id", id.String()),
				zap.Int("group_id", *current.MetabaseGroupID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CollectionEmbedURL issues a short-lived embed token for the workspace's
// collection.
func (s *Service) CollectionEmbedURL(ctx context.Context, id, userID uuid.UUID, ttl time.Duration) (embed.Token, error) {
	w, err := s.Get(ctx, id, userID)
	if err != nil {
		return embed.Token{}, err
	}
	if w.MetabaseCollectionID == nil {
		return embed.Token{}, ErrNotProvisioned
	}
	return s.issuer.Issue(embed.ResourceCollection, *w.MetabaseCollectionID, nil, ttl)
}
