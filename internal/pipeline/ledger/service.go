// Package ledger creates, reads, edits and deletes leads.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/placement"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/observability"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultActivityLimit = 100
	defaultPageSize      = 20
	maxPageSize          = 100
)

// Repository is the slice of the store the ledger needs.
type Repository interface {
	repository.PipelineReader
	repository.StageReader
	repository.LeadReader
	repository.LeadWriter
	repository.ActivityStore
}

// Service owns lead records.
type Service struct {
	repo    Repository
	planner *placement.Planner
	bus     events.Bus
	log     *logger.Logger
	metrics *observability.Metrics
}

// New creates a new ledger service. metrics may be nil.
func New(repo Repository, planner *placement.Planner, bus events.Bus, log *logger.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, planner: planner, bus: bus, log: log, metrics: metrics}
}

// Create appends a new OPEN lead to the tail of its stage.
func (s *Service) Create(ctx context.Context, tenantID, actorID uuid.UUID, req transport.CreateLeadRequest) (lead repository.Lead, err error) {
	const op = "ledger.create"
	defer func() { s.metrics.Command(op, placement.Outcome(err)) }()

	lead, err = s.newLead(tenantID, req)
	if err != nil {
		return repository.Lead{}, err
	}

	if _, err := s.repo.GetPipeline(ctx, tenantID, req.PipelineID); err != nil {
		return repository.Lead{}, notFound(err, "pipeline")
	}
	stage, err := s.repo.GetStage(ctx, tenantID, req.StageID)
	if err != nil {
		return repository.Lead{}, notFound(err, "stage")
	}
	if stage.PipelineID != req.PipelineID {
		return repository.Lead{}, apperr.InvalidPipeline("stage does not belong to the pipeline")
	}
	if req.Probability == nil {
		lead.Probability = stage.DefaultProbability
	}

	release, err := s.planner.Lock(ctx, op, stage.ID)
	if err != nil {
		return repository.Lead{}, err
	}
	defer release()

	positions, err := s.repo.ListStagePositions(ctx, tenantID, stage.ID)
	if err != nil {
		return repository.Lead{}, err
	}
	slot, err := s.planner.Append(ctx, op, stage.ID, positions)
	if err != nil {
		return repository.Lead{}, err
	}
	lead.Position = slot.Position

	if err := s.repo.InsertLead(ctx, lead, slot.Renumber); err != nil {
		return repository.Lead{}, s.planner.Persisted(ctx, op, stage.ID, err)
	}

	header := events.NewLeadHeader(tenantID, lead.PipelineID, lead.ID, actorID)
	if slot.Renumber != nil {
		s.bus.Publish(ctx, events.StagePositionsRenumbered{
			BaseEvent:  events.NewBaseEvent(),
			TenantID:   tenantID,
			PipelineID: lead.PipelineID,
			StageID:    stage.ID,
			LeadCount:  len(slot.Renumber),
		})
	}
	s.bus.Publish(ctx, events.LeadCreated{
		LeadHeader: header,
		StageID:    stage.ID,
		Position:   lead.Position,
		Title:      lead.Title,
	})

	s.log.WithContext(ctx).Info("lead created", "id", lead.ID, "stageId", stage.ID, "position", lead.Position)
	return lead, nil
}

func (s *Service) newLead(tenantID uuid.UUID, req transport.CreateLeadRequest) (repository.Lead, error) {
	title := sanitize.Text(req.Title)
	if title == "" {
		return repository.Lead{}, apperr.Validation("title is required")
	}
	contact := sanitize.Text(req.ContactRef)
	if contact == "" {
		return repository.Lead{}, apperr.Validation("contactRef is required")
	}
	if err := domain.ValidateAmount(req.EstimatedValue); err != nil {
		return repository.Lead{}, apperr.Validation("estimatedValue must not be negative")
	}
	probability := 0
	if req.Probability != nil {
		if err := domain.ValidateProbability(*req.Probability); err != nil {
			return repository.Lead{}, apperr.Validation(err.Error())
		}
		probability = *req.Probability
	}

	source := req.Source
	if source == "" {
		source = domain.SourceOther
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	now := time.Now().UTC()
	return repository.Lead{
		ID:                uuid.New(),
		TenantID:          tenantID,
		PipelineID:        req.PipelineID,
		StageID:           req.StageID,
		Title:             title,
		Description:       sanitize.Multiline(req.Description),
		ContactRef:        contact,
		EstimatedValue:    req.EstimatedValue.Round(2),
		Currency:          currency,
		Probability:       probability,
		Source:            source,
		Priority:          priority,
		Status:            domain.StatusOpen,
		Tags:              domain.NormalizeTags(req.Tags),
		AssignedTo:        req.AssigneeID,
		ExpectedCloseDate: req.ExpectedCloseDate,
		StageChangedAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, tenantID, leadID uuid.UUID) (repository.Lead, error) {
	lead, err := s.repo.GetLead(ctx, tenantID, leadID)
	if err != nil {
		return repository.Lead{}, notFound(err, "lead")
	}
	return lead, nil
}

// ListByStage returns the stage's leads by position ascending.
func (s *Service) ListByStage(ctx context.Context, tenantID, stageID uuid.UUID) ([]repository.Lead, error) {
	if _, err := s.repo.GetStage(ctx, tenantID, stageID); err != nil {
		return nil, notFound(err, "stage")
	}
	return s.repo.ListLeadsByStage(ctx, tenantID, stageID)
}

// Page is one page of a lead search.
type Page struct {
	Items []repository.Lead
	Page  int
	Limit int
	Total int
}

// Response maps the page for the HTTP layer.
func (p Page) Response() transport.LeadPageResponse {
	return transport.ToLeadPageResponse(p.Items, p.Page, p.Limit, p.Total)
}

// Search lists the tenant's leads across pipelines with optional filters.
func (s *Service) Search(ctx context.Context, tenantID uuid.UUID, req transport.LeadSearchQuery) (Page, error) {
	q, err := leadQuery(req)
	if err != nil {
		return Page{}, err
	}
	page := max(req.Page, 1)
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	q.Limit = limit
	q.Offset = (page - 1) * limit

	items, total, err := s.repo.SearchLeads(ctx, tenantID, q)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func leadQuery(req transport.LeadSearchQuery) (repository.LeadQuery, error) {
	var q repository.LeadQuery
	var err error
	if q.PipelineID, err = optionalID(req.PipelineID, "pipelineId"); err != nil {
		return q, err
	}
	if q.StageID, err = optionalID(req.StageID, "stageId"); err != nil {
		return q, err
	}
	if q.AssignedTo, err = optionalID(req.AssignedTo, "assignedTo"); err != nil {
		return q, err
	}
	if req.Status != "" {
		status := domain.LeadStatus(strings.ToUpper(req.Status))
		q.Status = &status
	}
	if req.Priority != "" {
		priority := domain.LeadPriority(strings.ToUpper(req.Priority))
		q.Priority = &priority
	}
	q.Search = strings.TrimSpace(req.Search)
	return q, nil
}

func optionalID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(name + " must be a UUID")
	}
	return &id, nil
}

// UpdateAttributes applies a partial edit. Value and probability only change
// on OPEN leads; descriptive fields may change at any status. Only the edited
// columns are written, so a move or close that commits meanwhile is kept.
func (s *Service) UpdateAttributes(ctx context.Context, tenantID, actorID, leadID uuid.UUID, req transport.UpdateLeadRequest) (updated repository.Lead, err error) {
	const op = "ledger.update"
	defer func() { s.metrics.Command(op, placement.Outcome(err)) }()

	lead, err := s.Get(ctx, tenantID, leadID)
	if err != nil {
		return repository.Lead{}, err
	}

	patch, fields, err := buildPatch(req)
	if err != nil {
		return repository.Lead{}, err
	}
	if patch.RequiresOpen() && lead.Status != domain.StatusOpen {
		return repository.Lead{}, apperr.InvalidTransition("value and probability are frozen once a lead is closed")
	}
	if len(fields) == 0 {
		return lead, nil
	}
	patch.TenantID = tenantID
	patch.LeadID = leadID
	patch.UpdatedAt = time.Now().UTC()

	updated, err = s.repo.UpdateLead(ctx, patch)
	if err != nil {
		return repository.Lead{}, s.planner.Persisted(ctx, op, lead.StageID, err)
	}

	s.bus.Publish(ctx, events.LeadUpdated{
		LeadHeader: events.NewLeadHeader(tenantID, updated.PipelineID, updated.ID, actorID),
		Fields:     fields,
	})
	return updated, nil
}

func buildPatch(req transport.UpdateLeadRequest) (repository.LeadPatch, []string, error) {
	var patch repository.LeadPatch
	fields := make([]string, 0)
	if req.Title != nil {
		title := sanitize.Text(*req.Title)
		if title == "" {
			return patch, nil, apperr.Validation("title is required")
		}
		patch.Title = &title
		fields = append(fields, "title")
	}
	if req.Description != nil {
		description := sanitize.Multiline(*req.Description)
		patch.Description = &description
		fields = append(fields, "description")
	}
	if req.ContactRef != nil {
		contact := sanitize.Text(*req.ContactRef)
		if contact == "" {
			return patch, nil, apperr.Validation("contactRef is required")
		}
		patch.ContactRef = &contact
		fields = append(fields, "contactRef")
	}
	if req.EstimatedValue != nil {
		if err := domain.ValidateAmount(*req.EstimatedValue); err != nil {
			return patch, nil, apperr.Validation("estimatedValue must not be negative")
		}
		value := req.EstimatedValue.Round(2)
		patch.EstimatedValue = &value
		fields = append(fields, "estimatedValue")
	}
	if req.Probability != nil {
		if err := domain.ValidateProbability(*req.Probability); err != nil {
			return patch, nil, apperr.Validation(err.Error())
		}
		probability := *req.Probability
		patch.Probability = &probability
		fields = append(fields, "probability")
	}
	if req.Source != nil {
		source := *req.Source
		patch.Source = &source
		fields = append(fields, "source")
	}
	if req.Priority != nil {
		priority := *req.Priority
		patch.Priority = &priority
		fields = append(fields, "priority")
	}
	if req.Tags != nil {
		tags := domain.NormalizeTags(*req.Tags)
		patch.Tags = &tags
		fields = append(fields, "tags")
	}
	if req.AssigneeID.Set {
		patch.SetAssignee = true
		patch.AssignedTo = req.AssigneeID.Value
		fields = append(fields, "assigneeId")
	}
	if req.ExpectedCloseDate != nil {
		v := *req.ExpectedCloseDate
		patch.ExpectedCloseDate = &v
		fields = append(fields, "expectedCloseDate")
	}
	if req.LastContactAt != nil {
		v := req.LastContactAt.UTC()
		patch.LastContactAt = &v
		fields = append(fields, "lastContactAt")
	}
	return patch, fields, nil
}

// Delete removes a lead. Other leads in the stage keep their positions.
func (s *Service) Delete(ctx context.Context, tenantID, actorID, leadID uuid.UUID) (err error) {
	const op = "ledger.delete"
	defer func() { s.metrics.Command(op, placement.Outcome(err)) }()

	lead, err := s.Get(ctx, tenantID, leadID)
	if err != nil {
		return err
	}

	release, err := s.planner.Lock(ctx, op, lead.StageID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.DeleteLead(ctx, tenantID, leadID); err != nil {
		return s.planner.Persisted(ctx, op, lead.StageID, err)
	}

	s.bus.Publish(ctx, events.LeadDeleted{
		LeadHeader: events.NewLeadHeader(tenantID, lead.PipelineID, lead.ID, actorID),
		StageID:    lead.StageID,
	})
	s.log.WithContext(ctx).Info("lead deleted", "id", leadID)
	return nil
}

// AddActivity logs a call, meeting, message or note against a lead and
// advances its last contact time. Closed leads accept entries too.
func (s *Service) AddActivity(ctx context.Context, tenantID, actorID, leadID uuid.UUID, req transport.AddActivityRequest) (activity repository.Activity, err error) {
	const op = "ledger.add_activity"
	defer func() { s.metrics.Command(op, placement.Outcome(err)) }()

	if !req.Type.IsContact() {
		return repository.Activity{}, apperr.Validation("type must be CALL, MEETING, EMAIL, MESSAGE or NOTE")
	}
	title := sanitize.Text(req.Title)
	if title == "" {
		return repository.Activity{}, apperr.Validation("title is required")
	}
	lead, err := s.Get(ctx, tenantID, leadID)
	if err != nil {
		return repository.Activity{}, err
	}

	now := time.Now().UTC()
	occurred := now
	if req.OccurredAt != nil {
		occurred = req.OccurredAt.UTC()
	}
	if occurred.After(now.Add(time.Minute)) {
		return repository.Activity{}, apperr.Validation("occurredAt must not be in the future")
	}

	metadata := map[string]any{}
	if description := sanitize.Multiline(req.Description); description != "" {
		metadata["description"] = description
	}
	if req.DurationMinutes != nil {
		metadata["durationMinutes"] = *req.DurationMinutes
	}
	activity = repository.Activity{
		ID:        uuid.New(),
		LeadID:    lead.ID,
		TenantID:  tenantID,
		Type:      req.Type,
		Title:     title,
		Metadata:  metadata,
		ActorID:   &actorID,
		CreatedAt: occurred,
	}
	if err := s.repo.AddActivity(ctx, activity); err != nil {
		s.log.WithContext(ctx).DatabaseError(op, err)
		return repository.Activity{}, err
	}

	// Back-dated entries never move the last contact time backwards.
	if lead.LastContactAt == nil || occurred.After(*lead.LastContactAt) {
		_, err := s.repo.UpdateLead(ctx, repository.LeadPatch{
			TenantID:      tenantID,
			LeadID:        lead.ID,
			LastContactAt: &occurred,
			UpdatedAt:     now,
		})
		if err != nil {
			return repository.Activity{}, s.planner.Persisted(ctx, op, lead.StageID, err)
		}
	}

	s.bus.Publish(ctx, events.LeadContacted{
		LeadHeader:   events.NewLeadHeader(tenantID, lead.PipelineID, lead.ID, actorID),
		ActivityID:   activity.ID,
		ActivityType: string(activity.Type),
		ContactedAt:  occurred,
	})
	return activity, nil
}

// ListActivities returns the lead's activity log, newest first.
func (s *Service) ListActivities(ctx context.Context, tenantID, leadID uuid.UUID) ([]repository.Activity, error) {
	if _, err := s.Get(ctx, tenantID, leadID); err != nil {
		return nil, err
	}
	return s.repo.ListActivities(ctx, tenantID, leadID, defaultActivityLimit)
}

func notFound(err error, subject string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(subject + " not found")
	}
	return err
}
