// Package movement serializes lead moves and status transitions under stage
// lock scopes.
package movement

import (
	"context"
	"errors"
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

// maxAttempts bounds how often a command chases a lead that keeps changing
// stage between its first read and the lock.
const maxAttempts = 3

// Repository is the slice of the store the coordinator needs.
type Repository interface {
	repository.StageReader
	repository.LeadReader
	repository.LeadWriter
}

// Coordinator is the only writer of stage membership and lead status.
type Coordinator struct {
	repo    Repository
	planner *placement.Planner
	bus     events.Bus
	log     *logger.Logger
	metrics *observability.Metrics
}

// New creates a coordinator. metrics may be nil.
func New(repo Repository, planner *placement.Planner, bus events.Bus, log *logger.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{repo: repo, planner: planner, bus: bus, log: log, metrics: metrics}
}

var errStale = errors.New("lead changed stage before the lock was taken")

// MoveLead places a lead at req.TargetIndex in the target stage, which may be
// its current stage. Cross-stage moves reset probability to the target
// stage's default unless req.Probability overrides it.
func (c *Coordinator) MoveLead(ctx context.Context, tenantID, actorID, leadID uuid.UUID, req transport.MoveLeadRequest) (moved repository.Lead, err error) {
	const op = "movement.move"
	defer func() { c.metrics.Command(op, placement.Outcome(err)) }()

	if req.Probability != nil {
		if err := domain.ValidateProbability(*req.Probability); err != nil {
			return repository.Lead{}, apperr.Validation(err.Error())
		}
	}

	lead, err := c.openLead(ctx, tenantID, leadID)
	if err != nil {
		return repository.Lead{}, err
	}
	target, err := c.repo.GetStage(ctx, tenantID, req.TargetStageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Lead{}, apperr.NotFound("stage not found")
		}
		return repository.Lead{}, err
	}
	if target.PipelineID != lead.PipelineID {
		return repository.Lead{}, apperr.InvalidPipeline("target stage belongs to another pipeline")
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		moved, err = c.tryMove(ctx, op, actorID, lead, target, req)
		if !errors.Is(err, errStale) {
			return moved, err
		}
		if lead, err = c.openLead(ctx, tenantID, leadID); err != nil {
			return repository.Lead{}, err
		}
	}
	return repository.Lead{}, apperr.Busy("lead is being moved concurrently, retry shortly").WithOp(op)
}

func (c *Coordinator) tryMove(ctx context.Context, op string, actorID uuid.UUID, seen repository.Lead, target repository.Stage, req transport.MoveLeadRequest) (repository.Lead, error) {
	release, err := c.planner.Lock(ctx, op, seen.StageID, target.ID)
	if err != nil {
		return repository.Lead{}, err
	}
	defer release()

	current, err := c.openLead(ctx, seen.TenantID, seen.ID)
	if err != nil {
		return repository.Lead{}, err
	}
	if current.StageID != seen.StageID {
		return repository.Lead{}, errStale
	}

	positions, err := c.repo.ListStagePositions(ctx, current.TenantID, target.ID)
	if err != nil {
		return repository.Lead{}, err
	}
	slot, err := c.planner.Place(ctx, op, target.ID, placement.Without(positions, current.ID), req.TargetIndex)
	if err != nil {
		return repository.Lead{}, err
	}

	now := time.Now().UTC()
	params := repository.MoveParams{
		TenantID:    current.TenantID,
		LeadID:      current.ID,
		FromStageID: current.StageID,
		ToStageID:   target.ID,
		Position:    slot.Position,
		Probability: current.Probability,
		Renumber:    slot.Renumber,
		UpdatedAt:   now,
	}
	crossStage := current.StageID != target.ID
	if crossStage {
		params.Probability = target.DefaultProbability
		params.StageChangedAt = &now
	}
	if req.Probability != nil {
		params.Probability = *req.Probability
	}

	moved, err := c.repo.ApplyMove(ctx, params)
	if errors.Is(err, repository.ErrStaleLead) {
		return repository.Lead{}, errStale
	}
	if err != nil {
		return repository.Lead{}, c.planner.Persisted(ctx, op, target.ID, err)
	}

	if slot.Renumber != nil {
		c.bus.Publish(ctx, events.StagePositionsRenumbered{
			BaseEvent:  events.NewBaseEvent(),
			TenantID:   moved.TenantID,
			PipelineID: moved.PipelineID,
			StageID:    target.ID,
			LeadCount:  len(slot.Renumber),
		})
	}
	c.bus.Publish(ctx, events.LeadMoved{
		LeadHeader:  events.NewLeadHeader(moved.TenantID, moved.PipelineID, moved.ID, actorID),
		FromStageID: current.StageID,
		ToStageID:   target.ID,
		Position:    moved.Position,
		Probability: moved.Probability,
	})

	c.log.WithContext(ctx).Info("lead moved",
		"id", moved.ID,
		"from", current.StageID,
		"to", target.ID,
		"position", moved.Position,
		"renumbered", slot.Renumber != nil,
	)
	return moved, nil
}

// MarkWon closes an OPEN lead as won with the realised value.
func (c *Coordinator) MarkWon(ctx context.Context, tenantID, actorID, leadID uuid.UUID, req transport.MarkWonRequest) (lead repository.Lead, err error) {
	const op = "movement.won"
	defer func() { c.metrics.Command(op, placement.Outcome(err)) }()

	if err := domain.ValidateAmount(req.ActualValue); err != nil {
		return repository.Lead{}, apperr.Validation("actualValue must not be negative")
	}
	value := req.ActualValue.Round(2)

	lead, err = c.closeLead(ctx, op, tenantID, leadID, func(stageID uuid.UUID, now time.Time) repository.CloseParams {
		return repository.CloseParams{
			TenantID:    tenantID,
			LeadID:      leadID,
			StageID:     stageID,
			Status:      domain.StatusWon,
			ActualValue: &value,
			Probability: domain.MaxProbability,
			ClosedAt:    now,
		}
	})
	if err != nil {
		return repository.Lead{}, err
	}

	c.bus.Publish(ctx, events.LeadWon{
		LeadHeader:  events.NewLeadHeader(tenantID, lead.PipelineID, lead.ID, actorID),
		StageID:     lead.StageID,
		ActualValue: value.StringFixed(2),
	})
	c.log.WithContext(ctx).Info("lead won", "id", lead.ID, "value", value.StringFixed(2))
	return lead, nil
}

// MarkLost closes an OPEN lead as lost. The reason must not be blank.
func (c *Coordinator) MarkLost(ctx context.Context, tenantID, actorID, leadID uuid.UUID, req transport.MarkLostRequest) (lead repository.Lead, err error) {
	const op = "movement.lost"
	defer func() { c.metrics.Command(op, placement.Outcome(err)) }()

	reason, err := domain.NormalizeLostReason(sanitize.Text(req.Reason))
	if err != nil {
		return repository.Lead{}, apperr.Validation(err.Error())
	}

	lead, err = c.closeLead(ctx, op, tenantID, leadID, func(stageID uuid.UUID, now time.Time) repository.CloseParams {
		return repository.CloseParams{
			TenantID:    tenantID,
			LeadID:      leadID,
			StageID:     stageID,
			Status:      domain.StatusLost,
			LostReason:  &reason,
			Probability: domain.MinProbability,
			ClosedAt:    now,
		}
	})
	if err != nil {
		return repository.Lead{}, err
	}

	c.bus.Publish(ctx, events.LeadLost{
		LeadHeader: events.NewLeadHeader(tenantID, lead.PipelineID, lead.ID, actorID),
		StageID:    lead.StageID,
		Reason:     reason,
	})
	c.log.WithContext(ctx).Info("lead lost", "id", lead.ID)
	return lead, nil
}

// closeLead applies a terminal transition under the lead's current stage scope.
func (c *Coordinator) closeLead(ctx context.Context, op string, tenantID, leadID uuid.UUID, build func(stageID uuid.UUID, now time.Time) repository.CloseParams) (repository.Lead, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lead, err := c.openLead(ctx, tenantID, leadID)
		if err != nil {
			return repository.Lead{}, err
		}

		closed, err := c.closeLocked(ctx, op, build(lead.StageID, time.Now().UTC()))
		if errors.Is(err, errStale) {
			continue
		}
		return closed, err
	}
	return repository.Lead{}, apperr.Busy("lead is being moved concurrently, retry shortly").WithOp(op)
}

func (c *Coordinator) closeLocked(ctx context.Context, op string, params repository.CloseParams) (repository.Lead, error) {
	release, err := c.planner.Lock(ctx, op, params.StageID)
	if err != nil {
		return repository.Lead{}, err
	}
	defer release()

	closed, err := c.repo.CloseLead(ctx, params)
	if errors.Is(err, repository.ErrStaleLead) {
		return repository.Lead{}, errStale
	}
	if err != nil {
		return repository.Lead{}, c.planner.Persisted(ctx, op, params.StageID, err)
	}
	return closed, nil
}

// openLead loads a lead and rejects closed ones.
func (c *Coordinator) openLead(ctx context.Context, tenantID, leadID uuid.UUID) (repository.Lead, error) {
	lead, err := c.repo.GetLead(ctx, tenantID, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Lead{}, apperr.NotFound("lead not found")
		}
		return repository.Lead{}, err
	}
	if lead.Status.IsTerminal() {
		return repository.Lead{}, apperr.InvalidTransition("lead is " + string(lead.Status) + " and can no longer change")
	}
	return lead, nil
}
