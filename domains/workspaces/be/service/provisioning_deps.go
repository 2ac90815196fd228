package service

import (
	"context"

	"github.com/google/uuid"
)

// Provisioner executes the external resource bundle for a new workspace and
// persists the result. Implementations must guarantee that a returned error
// leaves no local workspace record behind.
type Provisioner interface {
	Provision(ctx context.Context, req ProvisionRequest) (Workspace, error)
}

// ProvisionRequest carries everything the orchestrator needs for one attempt.
type ProvisionRequest struct {
	WorkspaceID         uuid.UUID
	Name                string
	Description         *string
	OwnerID             uuid.UUID
	OwnerMetabaseUserID *int
}
