// Package placement is the write path shared by the ledger and the move
// coordinator: it takes stage lock scopes and turns sequencer output into
// repository renumber lists.
package placement

import (
	"context"
	"errors"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/locking"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/sequencer"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/observability"

	"github.com/google/uuid"
)

// Planner places leads inside stages while holding their lock scopes.
type Planner struct {
	locker  locking.Locker
	seq     *sequencer.Sequencer
	log     *logger.Logger
	metrics *observability.Metrics
}

// New creates a planner. metrics may be nil.
func New(locker locking.Locker, seq *sequencer.Sequencer, log *logger.Logger, metrics *observability.Metrics) *Planner {
	return &Planner{locker: locker, seq: seq, log: log, metrics: metrics}
}

// Slot is a computed position plus the neighbours that must be rewritten with it.
type Slot struct {
	Position int64
	Renumber []repository.LeadPosition
}

// Lock acquires the scope for the given stages. A timeout becomes a Busy error;
// caller cancellation is returned unchanged.
func (p *Planner) Lock(ctx context.Context, op string, stageIDs ...uuid.UUID) (locking.Release, error) {
	start := time.Now()
	release, err := p.locker.Acquire(ctx, stageIDs...)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, locking.ErrTimeout) {
		keys := make([]string, len(stageIDs))
		for i, id := range stageIDs {
			keys[i] = id.String()
		}
		p.log.WithContext(ctx).LockTimeout(op, keys, time.Since(start))
		return nil, apperr.Busy("stage is busy, retry shortly").WithOp(op)
	}
	return nil, err
}

// Place computes a slot at index among the stage's ordered positions.
// Sequencer failures are logged, counted and returned as Integrity errors.
func (p *Planner) Place(ctx context.Context, op string, stageID uuid.UUID, stage []repository.LeadPosition, index int) (Slot, error) {
	positions := make([]int64, len(stage))
	for i, lp := range stage {
		positions[i] = lp.Position
	}

	placed, err := p.seq.InsertAt(positions, index)
	if err != nil {
		p.log.WithContext(ctx).IntegrityViolation(op, stageID.String(), err)
		p.metrics.IntegrityError()
		return Slot{}, apperr.Integrity("stage positions are inconsistent", err).WithOp(op)
	}

	slot := Slot{Position: placed.Position}
	if placed.HasRenumber() {
		slot.Renumber = make([]repository.LeadPosition, len(stage))
		for i, lp := range stage {
			slot.Renumber[i] = repository.LeadPosition{LeadID: lp.LeadID, Position: placed.Renumbered[i]}
		}
		p.metrics.Renumbered()
	}
	return slot, nil
}

// Append places at the tail of the stage.
func (p *Planner) Append(ctx context.Context, op string, stageID uuid.UUID, stage []repository.LeadPosition) (Slot, error) {
	return p.Place(ctx, op, stageID, stage, len(stage))
}

// Without returns the positions with one lead removed.
func Without(stage []repository.LeadPosition, leadID uuid.UUID) []repository.LeadPosition {
	out := make([]repository.LeadPosition, 0, len(stage))
	for _, lp := range stage {
		if lp.LeadID != leadID {
			out = append(out, lp)
		}
	}
	return out
}

// Outcome labels an operation result for the command counter.
func Outcome(err error) string {
	if err == nil {
		return observability.OutcomeOK
	}
	switch apperr.GetKind(err) {
	case apperr.KindBusy:
		return observability.OutcomeBusy
	case apperr.KindIntegrity:
		return observability.OutcomeIntegrity
	case apperr.KindNotFound, apperr.KindValidation, apperr.KindInvalidPipeline, apperr.KindInvalidTransition, apperr.KindConflict:
		return observability.OutcomeRejected
	default:
		return observability.OutcomeError
	}
}

// Persisted maps repository write failures that survived the lock scope.
// A position race lost to another instance is retryable and reported as busy.
// Any other position conflict means the ordering invariant was about to break,
// which is reported as an integrity error.
func (p *Planner) Persisted(ctx context.Context, op string, stageID uuid.UUID, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrPositionRace):
		p.log.WithContext(ctx).Warn("lost stage position race", "op", op, "stage_id", stageID, "error", err)
		return apperr.Busy("stage is busy, retry").WithOp(op)
	case errors.Is(err, repository.ErrPositionConflict):
		p.log.WithContext(ctx).IntegrityViolation(op, stageID.String(), err)
		p.metrics.IntegrityError()
		return apperr.Integrity("stage positions are inconsistent", err).WithOp(op)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("lead not found")
	case errors.Is(err, repository.ErrLeadClosed):
		return apperr.InvalidTransition("lead is no longer open")
	default:
		p.log.WithContext(ctx).DatabaseError(op, err)
		return err
	}
}
