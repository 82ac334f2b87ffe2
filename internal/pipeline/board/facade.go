// Package board assembles the read model of a pipeline: its stages in
// ordinal order, each with its leads in position order.
package board

import (
	"context"
	"errors"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the read slice the facade needs.
type Repository interface {
	repository.PipelineReader
	repository.StageReader
	repository.LeadReader
}

// Filter narrows the leads shown on the board.
type Filter struct {
	Status *domain.LeadStatus
}

type StageColumn struct {
	Stage      repository.Stage
	Leads      []repository.Lead
	TotalValue decimal.Decimal
}

// View is a pipeline with its stage columns.
type View struct {
	Pipeline repository.Pipeline
	Stages   []StageColumn
}

// Facade serves board reads. It never takes stage locks.
type Facade struct {
	repo Repository
}

func New(repo Repository) *Facade {
	return &Facade{repo: repo}
}

// ListPipelines returns the tenant's pipelines in creation order.
func (f *Facade) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]repository.Pipeline, error) {
	return f.repo.ListPipelines(ctx, tenantID)
}

// DefaultPipeline is the tenant's first pipeline by creation order.
func (f *Facade) DefaultPipeline(ctx context.Context, tenantID uuid.UUID) (repository.Pipeline, error) {
	items, err := f.repo.ListPipelines(ctx, tenantID)
	if err != nil {
		return repository.Pipeline{}, err
	}
	if len(items) == 0 {
		return repository.Pipeline{}, apperr.NotFound("tenant has no pipelines")
	}
	return items[0], nil
}

// Board returns the pipeline with every stage and its leads.
func (f *Facade) Board(ctx context.Context, tenantID, pipelineID uuid.UUID, filter Filter) (View, error) {
	p, err := f.repo.GetPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return View{}, apperr.NotFound("pipeline not found")
		}
		return View{}, err
	}

	stages, err := f.repo.ListStages(ctx, tenantID, pipelineID)
	if err != nil {
		return View{}, err
	}
	leads, err := f.repo.ListLeadsByPipeline(ctx, tenantID, pipelineID, repository.LeadFilter{Status: filter.Status})
	if err != nil {
		return View{}, err
	}

	columns := make([]StageColumn, len(stages))
	index := make(map[uuid.UUID]int, len(stages))
	for i, s := range stages {
		columns[i] = StageColumn{Stage: s, Leads: make([]repository.Lead, 0)}
		index[s.ID] = i
	}
	// Leads arrive sorted by position, so each column stays ordered.
	for _, l := range leads {
		i, ok := index[l.StageID]
		if !ok {
			continue
		}
		columns[i].Leads = append(columns[i].Leads, l)
		columns[i].TotalValue = columns[i].TotalValue.Add(l.EstimatedValue)
	}

	return View{Pipeline: p, Stages: columns}, nil
}

// Response renders the view for the API.
func (v View) Response() transport.BoardResponse {
	resp := transport.BoardResponse{
		Pipeline: transport.ToPipelineResponse(v.Pipeline),
		Stages:   make([]transport.BoardStageResponse, len(v.Stages)),
	}
	for i, col := range v.Stages {
		leads := transport.ToLeadListResponse(col.Leads).Items
		resp.Stages[i] = transport.BoardStageResponse{
			StageResponse: transport.ToStageResponse(col.Stage),
			Count:         len(col.Leads),
			TotalValue:    col.TotalValue.StringFixed(2),
			Leads:         leads,
		}
	}
	return resp
}
