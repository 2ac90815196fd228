package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dashboardsservice "github.com/quartzbyte/embedview/domains/dashboards/be/service"
	workspacesservice "github.com/quartzbyte/embedview/domains/workspaces/be/service"
	"github.com/quartzbyte/embedview/platform/go/metabase"
)

// Gateway is the slice of the Metabase client the reconciler drives.
type Gateway interface {
	SetEmbeddingEnabled(ctx context.Context, collectionID int) error
	CollectionItems(ctx context.Context, collectionID int) ([]metabase.CollectionItem, error)
}

// WorkspaceSource lists the workspaces to reconcile.
type WorkspaceSource interface {
	ListActive(ctx context.Context) ([]workspacesservice.Workspace, error)
}

// DashboardSink reads and writes the local dashboard mirror.
type DashboardSink interface {
	FindByExternalID(ctx context.Context, workspaceID uuid.UUID, metabaseDashboardID int) (dashboardsservice.Dashboard, error)
	ApplyDiscovered(ctx context.Context, inserts, renames []dashboardsservice.Dashboard) error
}

// PassResult summarizes one reconciliation sweep. Failures counts workspaces
// whose repair or discovery broke; the sweep itself never fails because of
// them.
type PassResult struct {
	Workspaces int
	Repaired   int
	Imported   int
	Renamed    int
	Failures   int
}

// Engine repairs external drift and imports externally created dashboards.
type Engine struct {
	gw         Gateway
	workspaces WorkspaceSource
	dashboards DashboardSink
	logger     *zap.Logger
}

// NewEngine constructs an Engine with required dependencies.
func NewEngine(gw Gateway, workspaces WorkspaceSource, dashboards DashboardSink, logger *zap.Logger) *Engine {
	if gw == nil {
		panic("sync engine requires gateway")
	}
	if workspaces == nil {
		panic("sync engine requires workspace source")
	}
	if dashboards == nil {
		panic("sync engine requires dashboard sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{gw: gw, workspaces: workspaces, dashboards: dashboards, logger: logger}
}

// RunPass executes one idempotent sweep over every active workspace with a
// linked collection: re-assert the embedding flag, then import dashboards
// that exist externally but not locally and pick up external renames. All
// staged local writes commit in one transaction at the end; a failed commit
// rolls back local changes only, never external repairs. One workspace's
// failure never aborts the sweep.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	workspaces, err := e.workspaces.ListActive(ctx)
	if err != nil {
		return PassResult{}, err
	}

	var (
		result  PassResult
		inserts []dashboardsservice.Dashboard
		renames []dashboardsservice.Dashboard
	)

	for _, ws := range workspaces {
		if ws.MetabaseCollectionID == nil {
			continue
		}
		result.Workspaces++

		wsInserts, wsRenames, err := e.reconcileWorkspace(ctx, ws)
		if err != nil {
			result.Failures++
			e.logger.Warn("workspace reconciliation failed, continuing sweep",
				zap.String("workspace_id", ws.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Repaired++
		inserts = append(inserts, wsInserts...)
		renames = append(renames, wsRenames...)
	}

	if len(inserts) > 0 || len(renames) > 0 {
		if err := e.dashboards.ApplyDiscovered(ctx, inserts, renames); err != nil {
			return result, err
		}
	}
	result.Imported = len(inserts)
	result.Renamed = len(renames)

	e.logger.Info("reconciliation pass finished",
		zap.Int("workspaces", result.Workspaces),
		zap.Int("repaired", result.Repaired),
		zap.Int("imported", result.Imported),
		zap.Int("renamed", result.Renamed),
		zap.Int("failures", result.Failures),
	)
	return result, nil
}

// reconcileWorkspace stages but does not commit local writes.
func (e *Engine) reconcileWorkspace(ctx context.Context, ws workspacesservice.Workspace) (inserts, renames []dashboardsservice.Dashboard, err error) {
	collectionID := *ws.MetabaseCollectionID

	// Repair first. The flag is cheap to re-assert and external admins keep
	// turning it off.
	if err := e.gw.SetEmbeddingEnabled(ctx, collectionID); err != nil {
		return nil, nil, err
	}

	items, err := e.gw.CollectionItems(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	for _, item := range items {
		if item.Model != "dashboard" {
			continue
		}

		existing, err := e.dashboards.FindByExternalID(ctx, ws.ID, item.ID)
		if err != nil {
			if errors.Is(err, dashboardsservice.ErrNotFound) {
				inserts = append(inserts, dashboardsservice.Dashboard{
					ID:                  uuid.New(),
					WorkspaceID:         ws.ID,
					MetabaseDashboardID: item.ID,
					Name:                item.Name,
					Public:              false,
					Snapshot:            item.Raw,
					CreatedAt:           now,
					UpdatedAt:           now,
				})
				continue
			}
			return nil, nil, err
		}

		if existing.Name != item.Name {
			existing.Name = item.Name
			existing.Snapshot = item.Raw
			existing.UpdatedAt = now
			renames = append(renames, existing)
		}
	}
	return inserts, renames, nil
}
