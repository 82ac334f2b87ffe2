package repository

import (
	"context"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// PipelineReader provides read-only access to pipelines.
type PipelineReader interface {
	GetPipeline(ctx context.Context, tenantID, id uuid.UUID) (Pipeline, error)
	// ListPipelines returns pipelines in creation order.
	ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]Pipeline, error)
}

// PipelineDirectory lists pipelines across tenants for background jobs.
type PipelineDirectory interface {
	ListAllPipelines(ctx context.Context) ([]Pipeline, error)
}

// PipelineWriter creates and edits pipelines.
type PipelineWriter interface {
	// CreatePipeline inserts the pipeline and its initial stages atomically.
	CreatePipeline(ctx context.Context, p Pipeline, stages []Stage) error
	UpdatePipeline(ctx context.Context, p Pipeline) error
	// DeletePipeline removes a pipeline and its stages. Fails with ErrNotEmpty while leads remain.
	DeletePipeline(ctx context.Context, tenantID, id uuid.UUID) error
}

// StageReader provides read-only access to stages.
type StageReader interface {
	GetStage(ctx context.Context, tenantID, id uuid.UUID) (Stage, error)
	// ListStages returns the pipeline's stages by ordinal ascending.
	ListStages(ctx context.Context, tenantID, pipelineID uuid.UUID) ([]Stage, error)
}

// StageWriter edits the stage catalog.
type StageWriter interface {
	CreateStage(ctx context.Context, s Stage) error
	UpdateStage(ctx context.Context, s Stage) error
	ReorderStages(ctx context.Context, tenantID, pipelineID uuid.UUID, ordinals []StageOrdinal) error
	// DeleteStage fails with ErrNotEmpty while the stage holds leads.
	DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error
}

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetLead(ctx context.Context, tenantID, id uuid.UUID) (Lead, error)
	// ListLeadsByStage returns leads by position ascending.
	ListLeadsByStage(ctx context.Context, tenantID, stageID uuid.UUID) ([]Lead, error)
	ListLeadsByPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID, filter LeadFilter) ([]Lead, error)
	// SearchLeads returns one page ordered by pipeline, stage ordinal and
	// position, plus the number of matches across all pages.
	SearchLeads(ctx context.Context, tenantID uuid.UUID, q LeadQuery) ([]Lead, int, error)
	// ListStagePositions returns the stage's ordered position list.
	ListStagePositions(ctx context.Context, tenantID, stageID uuid.UUID) ([]LeadPosition, error)
}

// LeadWriter mutates leads. Callers hold the stage lock scope for any
// write that touches positions.
type LeadWriter interface {
	InsertLead(ctx context.Context, lead Lead, renumber []LeadPosition) error
	// UpdateLead writes the patched attributes only. A patch that changes value
	// or probability applies to OPEN leads and fails with ErrLeadClosed otherwise.
	UpdateLead(ctx context.Context, patch LeadPatch) (Lead, error)
	ApplyMove(ctx context.Context, params MoveParams) (Lead, error)
	CloseLead(ctx context.Context, params CloseParams) (Lead, error)
	DeleteLead(ctx context.Context, tenantID, id uuid.UUID) error
}

// ActivityStore records the activity log of leads.
type ActivityStore interface {
	AddActivity(ctx context.Context, a Activity) error
	// ListActivities returns the newest entries first.
	ListActivities(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]Activity, error)
}

// Store is the composite of every segregated interface.
type Store interface {
	PipelineReader
	PipelineDirectory
	PipelineWriter
	StageReader
	StageWriter
	LeadReader
	LeadWriter
	ActivityStore
}
