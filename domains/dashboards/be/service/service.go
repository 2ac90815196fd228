package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	workspacesservice "github.com/quartzbyte/embedview/domains/workspaces/be/service"
	"github.com/quartzbyte/embedview/platform/go/metabase"
	"github.com/quartzbyte/embedview/platform/go/metabase/embed"
)

// Errors returned by the service layer.
var ErrNotFound = errors.New("dashboard not found")

// Dashboard is the local mirror of one external Metabase dashboard.
type Dashboard struct {
	ID                  uuid.UUID
	WorkspaceID         uuid.UUID
	MetabaseDashboardID int
	Name                string
	Description         *string
	Public              bool
	Snapshot            []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateInput represents the request to create a dashboard.
type CreateInput struct {
	WorkspaceID uuid.UUID
	Name        string
	Description *string
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, d Dashboard) (Dashboard, error)
	Get(ctx context.Context, id uuid.UUID) (Dashboard, error)
	FindByExternalID(ctx context.Context, workspaceID uuid.UUID, metabaseDashboardID int) (Dashboard, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]Dashboard, error)
	ApplyDiscovered(ctx context.Context, inserts, renames []Dashboard) error
}

// Gateway is the slice of the Metabase client the dashboards domain needs.
type Gateway interface {
	CreateDashboard(ctx context.Context, name string, collectionID int, description string) (metabase.Dashboard, error)
}

// WorkspaceAccess authorizes per-workspace operations and exposes the
// workspace's external ids.
type WorkspaceAccess interface {
	CheckAccess(ctx context.Context, id, userID uuid.UUID) (workspacesservice.Workspace, error)
}

// EmbedIssuer mints signed embedding tokens.
type EmbedIssuer interface {
	Issue(resource embed.ResourceType, resourceID int, params map[string]interface{}, ttl time.Duration) (embed.Token, error)
}

// Service provides dashboard operations.
type Service struct {
	repo       Repository
	gateway    Gateway
	workspaces WorkspaceAccess
	issuer     EmbedIssuer
}

// New constructs a Service with required dependencies.
func New(repo Repository, gateway Gateway, workspaces WorkspaceAccess, issuer EmbedIssuer) *Service {
	if repo == nil {
		panic("dashboards repo is required")
	}
	if gateway == nil {
		panic("dashboards gateway is required")
	}
	if workspaces == nil {
		panic("workspace access is required")
	}
	if issuer == nil {
		panic("embed issuer is required")
	}
	return &Service{repo: repo, gateway: gateway, workspaces: workspaces, issuer: issuer}
}

// Create makes the dashboard in the workspace's collection and mirrors it
// locally. New dashboards default to private.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (Dashboard, error) {
	if input.Name == "" {
		return Dashboard{}, errors.New("dashboard name is required")
	}

	ws, err := s.workspaces.CheckAccess(ctx, input.WorkspaceID, userID)
	if err != nil {
		return Dashboard{}, err
	}
	if ws.MetabaseCollectionID == nil {
		return Dashboard{}, workspacesservice.ErrNotProvisioned
	}

	description := ""
	if input.Description != nil {
		description = *input.Description
	}
	external, err := s.gateway.CreateDashboard(ctx, input.Name, *ws.MetabaseCollectionID, description)
	if err != nil {
		return Dashboard{}, err
	}

	now := time.Now().UTC()
	return s.repo.Create(ctx, Dashboard{
		ID:                  uuid.New(),
		WorkspaceID:         input.WorkspaceID,
		MetabaseDashboardID: external.ID,
		Name:                input.Name,
		Description:         input.Description,
		Public:              false,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
}

// List returns the workspace's dashboards.
func (s *Service) List(ctx context.Context, workspaceID, userID uuid.UUID) ([]Dashboard, error) {
	if _, err := s.workspaces.CheckAccess(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByWorkspace(ctx, workspaceID)
}

// Get returns one dashboard the user can access.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (Dashboard, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dashboard{}, err
	}
	if _, err := s.workspaces.CheckAccess(ctx, d.WorkspaceID, userID); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// EmbedURL issues a short-lived embed token for the dashboard.
func (s *Service) EmbedURL(ctx context.Context, id, userID uuid.UUID, params map[string]interface{}, ttl time.Duration) (embed.Token, error) {
	d, err := s.Get(ctx, id, userID)
	if err != nil {
		return embed.Token{}, err
	}
	return s.issuer.Issue(embed.ResourceDashboard, d.MetabaseDashboardID, params, ttl)
}
