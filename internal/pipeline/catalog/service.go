// Package catalog owns pipelines and their ordered stages.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Repository is the slice of the store the catalog needs.
type Repository interface {
	repository.PipelineReader
	repository.PipelineWriter
	repository.StageReader
	repository.StageWriter
}

// Service provides stage catalog reads and pipeline configuration.
type Service struct {
	repo      Repository
	templates Templates
	log       *logger.Logger
	ensure    singleflight.Group
}

// New creates a new catalog service.
func New(repo Repository, templates Templates, log *logger.Logger) *Service {
	if templates == nil {
		templates = Templates{}
	}
	return &Service{repo: repo, templates: templates, log: log}
}

// ListPipelines returns the tenant's pipelines in creation order.
func (s *Service) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]repository.Pipeline, error) {
	return s.repo.ListPipelines(ctx, tenantID)
}

func (s *Service) GetPipeline(ctx context.Context, tenantID, id uuid.UUID) (repository.Pipeline, error) {
	p, err := s.repo.GetPipeline(ctx, tenantID, id)
	if err != nil {
		return repository.Pipeline{}, mapError(err, "pipeline")
	}
	return p, nil
}

// ListStages returns the pipeline's stages by ordinal ascending.
func (s *Service) ListStages(ctx context.Context, tenantID, pipelineID uuid.UUID) ([]repository.Stage, error) {
	if _, err := s.GetPipeline(ctx, tenantID, pipelineID); err != nil {
		return nil, err
	}
	return s.repo.ListStages(ctx, tenantID, pipelineID)
}

func (s *Service) GetStage(ctx context.Context, tenantID, id uuid.UUID) (repository.Stage, error) {
	stage, err := s.repo.GetStage(ctx, tenantID, id)
	if err != nil {
		return repository.Stage{}, mapError(err, "stage")
	}
	return stage, nil
}

// CreatePipeline creates a pipeline with its initial stages. Stages without an
// explicit ordinal take their 1-based request position.
func (s *Service) CreatePipeline(ctx context.Context, tenantID uuid.UUID, req transport.CreatePipelineRequest) (repository.Pipeline, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return repository.Pipeline{}, apperr.Validation("pipeline name is required")
	}

	now := time.Now().UTC()
	p := repository.Pipeline{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Color:       strings.TrimSpace(req.Color),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stages := make([]repository.Stage, 0, len(req.Stages))
	seen := make(map[int]struct{}, len(req.Stages))
	for i, sr := range req.Stages {
		ordinal := i + 1
		if sr.Ordinal != nil {
			ordinal = *sr.Ordinal
		}
		if _, dup := seen[ordinal]; dup {
			return repository.Pipeline{}, apperr.Validation("duplicate stage ordinal").WithDetails(map[string]int{"ordinal": ordinal})
		}
		seen[ordinal] = struct{}{}

		stage, err := newStage(p, sr, ordinal, now)
		if err != nil {
			return repository.Pipeline{}, err
		}
		stages = append(stages, stage)
	}

	if err := s.repo.CreatePipeline(ctx, p, stages); err != nil {
		return repository.Pipeline{}, mapError(err, "pipeline")
	}

	s.log.Info("pipeline created", "id", p.ID, "tenantId", tenantID, "stages", len(stages))
	return p, nil
}

// CreateFromTemplate instantiates a named template for the tenant.
func (s *Service) CreateFromTemplate(ctx context.Context, tenantID uuid.UUID, name string) (repository.Pipeline, error) {
	tpl, ok := s.templates[name]
	if !ok {
		return repository.Pipeline{}, apperr.NotFound("pipeline template not found")
	}

	req := transport.CreatePipelineRequest{
		Name:        tpl.Pipeline.Name,
		Description: tpl.Pipeline.Description,
		Color:       tpl.Pipeline.Color,
		Stages:      make([]transport.StageRequest, len(tpl.Stages)),
	}
	for i, st := range tpl.Stages {
		probability := st.Probability
		req.Stages[i] = transport.StageRequest{
			Name:               st.Name,
			Description:        st.Description,
			Color:              st.Color,
			DefaultProbability: &probability,
		}
	}
	return s.CreatePipeline(ctx, tenantID, req)
}

// TemplateNames lists the templates available to CreateFromTemplate.
func (s *Service) TemplateNames() []string {
	return s.templates.Names()
}

// EnsureDefaultPipeline returns the tenant's first pipeline, creating one from
// the default template when the tenant owns none. Concurrent calls for the
// same tenant share one creation.
func (s *Service) EnsureDefaultPipeline(ctx context.Context, tenantID uuid.UUID) (repository.Pipeline, error) {
	v, err, _ := s.ensure.Do(tenantID.String(), func() (interface{}, error) {
		items, err := s.repo.ListPipelines(ctx, tenantID)
		if err != nil {
			return repository.Pipeline{}, err
		}
		if len(items) > 0 {
			return items[0], nil
		}
		return s.CreateFromTemplate(ctx, tenantID, DefaultTemplate)
	})
	if err != nil {
		return repository.Pipeline{}, err
	}
	return v.(repository.Pipeline), nil
}

func (s *Service) UpdatePipeline(ctx context.Context, tenantID, id uuid.UUID, req transport.UpdatePipelineRequest) (repository.Pipeline, error) {
	p, err := s.GetPipeline(ctx, tenantID, id)
	if err != nil {
		return repository.Pipeline{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return repository.Pipeline{}, apperr.Validation("pipeline name is required")
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Color != nil {
		p.Color = strings.TrimSpace(*req.Color)
	}
	p.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdatePipeline(ctx, p); err != nil {
		return repository.Pipeline{}, mapError(err, "pipeline")
	}
	return p, nil
}

// DeletePipeline removes an empty pipeline and its stages.
func (s *Service) DeletePipeline(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.repo.DeletePipeline(ctx, tenantID, id); err != nil {
		return mapError(err, "pipeline")
	}
	s.log.Info("pipeline deleted", "id", id, "tenantId", tenantID)
	return nil
}

// AddStage appends a stage after the current last ordinal unless one is given.
func (s *Service) AddStage(ctx context.Context, tenantID, pipelineID uuid.UUID, req transport.StageRequest) (repository.Stage, error) {
	p, err := s.GetPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		return repository.Stage{}, err
	}
	existing, err := s.repo.ListStages(ctx, tenantID, pipelineID)
	if err != nil {
		return repository.Stage{}, err
	}

	ordinal := 1
	if n := len(existing); n > 0 {
		ordinal = existing[n-1].Ordinal + 1
	}
	if req.Ordinal != nil {
		ordinal = *req.Ordinal
		for _, st := range existing {
			if st.Ordinal == ordinal {
				return repository.Stage{}, apperr.Validation("stage ordinal already taken")
			}
		}
	}

	stage, err := newStage(p, req, ordinal, time.Now().UTC())
	if err != nil {
		return repository.Stage{}, err
	}
	if err := s.repo.CreateStage(ctx, stage); err != nil {
		return repository.Stage{}, mapError(err, "pipeline")
	}

	s.log.Info("stage added", "id", stage.ID, "pipelineId", pipelineID, "ordinal", ordinal)
	return stage, nil
}

func (s *Service) UpdateStage(ctx context.Context, tenantID, id uuid.UUID, req transport.UpdateStageRequest) (repository.Stage, error) {
	stage, err := s.GetStage(ctx, tenantID, id)
	if err != nil {
		return repository.Stage{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return repository.Stage{}, apperr.Validation("stage name is required")
		}
		stage.Name = name
	}
	if req.Description != nil {
		stage.Description = strings.TrimSpace(*req.Description)
	}
	if req.Color != nil {
		stage.Color = strings.TrimSpace(*req.Color)
	}
	if req.DefaultProbability != nil {
		if err := domain.ValidateProbability(*req.DefaultProbability); err != nil {
			return repository.Stage{}, apperr.Validation(err.Error())
		}
		stage.DefaultProbability = *req.DefaultProbability
	}
	stage.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateStage(ctx, stage); err != nil {
		return repository.Stage{}, mapError(err, "stage")
	}
	return stage, nil
}

// ReorderStages rewrites ordinals to 1..n following stageIDs, which must be a
// permutation of the pipeline's stages.
func (s *Service) ReorderStages(ctx context.Context, tenantID, pipelineID uuid.UUID, stageIDs []uuid.UUID) ([]repository.Stage, error) {
	existing, err := s.ListStages(ctx, tenantID, pipelineID)
	if err != nil {
		return nil, err
	}
	if len(stageIDs) != len(existing) {
		return nil, apperr.Validation("stage order must list every stage of the pipeline exactly once")
	}

	known := make(map[uuid.UUID]struct{}, len(existing))
	for _, st := range existing {
		known[st.ID] = struct{}{}
	}
	ordinals := make([]repository.StageOrdinal, len(stageIDs))
	for i, id := range stageIDs {
		if _, ok := known[id]; !ok {
			return nil, apperr.Validation("stage order must list every stage of the pipeline exactly once")
		}
		delete(known, id)
		ordinals[i] = repository.StageOrdinal{StageID: id, Ordinal: i + 1}
	}

	if err := s.repo.ReorderStages(ctx, tenantID, pipelineID, ordinals); err != nil {
		return nil, mapError(err, "stage")
	}
	return s.repo.ListStages(ctx, tenantID, pipelineID)
}

// DeleteStage removes an empty stage.
func (s *Service) DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.repo.DeleteStage(ctx, tenantID, id); err != nil {
		return mapError(err, "stage")
	}
	s.log.Info("stage deleted", "id", id, "tenantId", tenantID)
	return nil
}

func newStage(p repository.Pipeline, req transport.StageRequest, ordinal int, now time.Time) (repository.Stage, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return repository.Stage{}, apperr.Validation("stage name is required")
	}
	probability := 0
	if req.DefaultProbability != nil {
		probability = *req.DefaultProbability
	}
	if err := domain.ValidateProbability(probability); err != nil {
		return repository.Stage{}, apperr.Validation(err.Error())
	}
	return repository.Stage{
		ID:                 uuid.New(),
		PipelineID:         p.ID,
		TenantID:           p.TenantID,
		Name:               name,
		Description:        strings.TrimSpace(req.Description),
		Color:              strings.TrimSpace(req.Color),
		DefaultProbability: probability,
		Ordinal:            ordinal,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func mapError(err error, subject string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(subject + " not found")
	case errors.Is(err, repository.ErrOrdinalTaken):
		return apperr.Validation("stage ordinal already taken")
	case errors.Is(err, repository.ErrNotEmpty):
		return apperr.Conflict(subject + " still holds leads")
	default:
		return err
	}
}
