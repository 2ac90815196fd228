package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quartzbyte/embedview/domains/workspaces/be/service"
	"github.com/quartzbyte/embedview/platform/go/metabase"
)

// Gateway is the slice of the Metabase client the orchestrator drives.
type Gateway interface {
	CreateCollection(ctx context.Context, name, description string) (metabase.Collection, error)
	SetEmbeddingEnabled(ctx context.Context, collectionID int) error
	CreateGroup(ctx context.Context, name string) (metabase.Group, error)
	GrantCollectionPermission(ctx context.Context, groupID, collectionID int, level metabase.PermissionLevel) error
	GrantDatabaseAccess(ctx context.Context, groupID, databaseID int) error
	AddGroupMember(ctx context.Context, userID, groupID int) error
	DeleteCollection(ctx context.Context, id int) error
	DeleteGroup(ctx context.Context, id int) error
}

// Store persists the provisioned workspace. CreateWithOwner must be atomic:
// workspace and owner membership commit together or not at all.
type Store interface {
	CreateWithOwner(ctx context.Context, w service.Workspace, m service.Membership) (service.Workspace, error)
}

// Error reports which stage aborted a provisioning attempt.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config wires an Orchestrator.
type Config struct {
	Gateway Gateway
	Store   Store
	// AnalyticsDatabaseID is the shared Metabase database every workspace
	// group is granted access to. Nil means no shared database exists yet;
	// the grant step is skipped with a log line.
	AnalyticsDatabaseID *int
	Logger              *zap.Logger
}

// Orchestrator runs the external resource bundle for a new workspace:
// collection, embedding flag, group, grants, owner membership, then one
// atomic local persist.
type Orchestrator struct {
	gw         Gateway
	store      Store
	databaseID *int
	logger     *zap.Logger
}

// NewOrchestrator constructs an Orchestrator with required dependencies.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Gateway == nil {
		panic("orchestrator requires gateway")
	}
	if cfg.Store == nil {
		panic("orchestrator requires store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{gw: cfg.Gateway, store: cfg.Store, databaseID: cfg.AnalyticsDatabaseID, logger: logger}
}

// step is one stage of the bundle. Mandatory steps trigger compensation and
// abort on failure; the rest log and move on.
type step struct {
	name      string
	mandatory bool
	run       func(ctx context.Context) error
}

// Provision executes the bundle. A returned error means no local workspace
// record exists; created external resources have been compensated where the
// failure allowed it. The sequence is never blindly retried mid-way: a failed
// attempt compensates and the caller starts over.
func (o *Orchestrator) Provision(ctx context.Context, req service.ProvisionRequest) (service.Workspace, error) {
	logger := o.logger.With(
		zap.String("workspace_id", req.WorkspaceID.String()),
		zap.String("workspace", req.Name),
	)

	var (
		collectionID int
		groupID      int
	)

	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	steps := []step{
		{name: "create collection", mandatory: true, run: func(ctx context.Context) error {
			collection, err := o.gw.CreateCollection(ctx, req.Name, description)
			if err != nil {
				return err
			}
			collectionID = collection.ID
			return nil
		}},
		{name: "enable embedding", mandatory: true, run: func(ctx context.Context) error {
			return o.gw.SetEmbeddingEnabled(ctx, collectionID)
		}},
		{name: "create group", mandatory: true, run: func(ctx context.Context) error {
			group, err := o.gw.CreateGroup(ctx, fmt.Sprintf("%s Team", req.Name))
			if err != nil {
				return err
			}
			groupID = group.ID
			return nil
		}},
		{name: "grant collection permission", mandatory: true, run: func(ctx context.Context) error {
			return o.gw.GrantCollectionPermission(ctx, groupID, collectionID, metabase.PermissionWrite)
		}},
		{name: "grant database access", mandatory: false, run: func(ctx context.Context) error {
			if o.databaseID == nil {
				logger.Info("no shared analytics database configured, skipping grant")
				return nil
			}
			return o.gw.GrantDatabaseAccess(ctx, groupID, *o.databaseID)
		}},
		{name: "add owner to group", mandatory: false, run: func(ctx context.Context) error {
			if req.OwnerMetabaseUserID == nil {
				logger.Warn("owner has no metabase identity yet, skipping group membership")
				return nil
			}
			return o.gw.AddGroupMember(ctx, *req.OwnerMetabaseUserID, groupID)
		}},
	}

	for _, st := range steps {
		err := st.run(ctx)
		if err == nil {
			continue
		}
		if !st.mandatory {
			logger.Warn("best-effort provisioning step failed, continuing",
				zap.String("stage", st.name),
				zap.Error(err),
			)
			continue
		}

		logger.Error("provisioning aborted",
			zap.String("stage", st.name),
			zap.Error(err),
		)
		o.compensate(ctx, logger, collectionID, groupID)
		return service.Workspace{}, &Error{Stage: st.name, Err: err}
	}

	now := time.Now().UTC()
	workspace := service.Workspace{
		ID:                   req.WorkspaceID,
		Name:                 req.Name,
		Description:          req.Description,
		OwnerID:              req.OwnerID,
		MetabaseCollectionID: &collectionID,
		MetabaseGroupID:      &groupID,
		MetabaseDatabaseID:   o.databaseID,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	membership := service.Membership{
		ID:          uuid.New(),
		WorkspaceID: req.WorkspaceID,
		UserID:      req.OwnerID,
		Role:        service.RoleOwner,
		JoinedAt:    now,
	}

	persisted, err := o.store.CreateWithOwner(ctx, workspace, membership)
	if err != nil {
		// External resources exist but the local record does not. The ids
		// must survive in the logs so an operator or the reconciler can
		// recover them.
		logger.Error("workspace persist failed after external provisioning, orphaned resources",
			zap.Int("collection_id", collectionID),
			zap.Int("group_id", groupID),
			zap.Error(err),
		)
		return service.Workspace{}, &Error{Stage: "persist workspace", Err: err}
	}

	logger.Info("workspace provisioned",
		zap.Int("collection_id", collectionID),
		zap.Int("group_id", groupID),
	)
	return persisted, nil
}

// compensate deletes whatever this attempt created. Failures are logged and
// never mask the original step error.
func (o *Orchestrator) compensate(ctx context.Context, logger *zap.Logger, collectionID, groupID int) {
	if collectionID != 0 {
		if err := o.gw.DeleteCollection(ctx, collectionID); err != nil {
			logger.Error("compensation could not delete collection",
				zap.Int("collection_id", collectionID),
				zap.Error(err),
			)
		}
	}
	if groupID != 0 {
		if err := o.gw.DeleteGroup(ctx, groupID); err != nil {
			logger.Error("compensation could not delete group",
				zap.Int("group_id", groupID),
				zap.Error(err),
			)
		}
	}
}

var _ service.Provisioner = (*Orchestrator)(nil)
