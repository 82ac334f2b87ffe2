// Package activity turns committed pipeline events into the per-lead activity
// log and forwards them to an AMQP exchange for downstream consumers.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
)

// Recorder writes exactly one activity entry per lead event.
type Recorder struct {
	store repository.ActivityStore
	log   *logger.Logger
}

func NewRecorder(store repository.ActivityStore, log *logger.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Subscribe registers the recorder for every lead event.
func (r *Recorder) Subscribe(bus events.Bus) {
	for _, name := range events.AllNames {
		bus.Subscribe(name, events.HandlerFunc(r.Handle))
	}
}

// Handle records the event. Events that do not belong to a lead are ignored.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	entry, ok := Entry(e)
	if !ok {
		return nil
	}
	if err := r.store.AddActivity(ctx, entry); err != nil {
		r.log.WithContext(ctx).DatabaseError("activity.record", err)
		return fmt.Errorf("record %s: %w", e.EventName(), err)
	}
	return nil
}

// Entry maps a lead event to its activity entry.
func Entry(e events.Event) (repository.Activity, bool) {
	scoped, ok := e.(events.LeadScoped)
	if !ok {
		return repository.Activity{}, false
	}

	// The event id doubles as the entry id so a redelivered event maps to the same row.
	a := repository.Activity{
		ID:        e.EventID(),
		LeadID:    scoped.Lead(),
		TenantID:  scoped.Tenant(),
		CreatedAt: e.OccurredAt().UTC(),
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if actor := scoped.Actor(); actor != uuid.Nil {
		a.ActorID = &actor
	}

	switch ev := e.(type) {
	case events.LeadCreated:
		a.Type = domain.ActivityCreated
		a.Title = "Lead created"
		a.Metadata = map[string]any{"stageId": ev.StageID.String(), "position": ev.Position}
	case events.LeadMoved:
		a.Type = domain.ActivityReorder
		a.Title = "Lead reordered"
		if ev.CrossStage() {
			a.Type = domain.ActivityStageChange
			a.Title = "Lead moved to another stage"
		}
		a.Metadata = map[string]any{
			"fromStageId": ev.FromStageID.String(),
			"toStageId":   ev.ToStageID.String(),
			"position":    ev.Position,
			"probability": ev.Probability,
		}
	case events.LeadWon:
		a.Type = domain.ActivityWon
		a.Title = "Lead won"
		a.Metadata = map[string]any{"stageId": ev.StageID.String(), "actualValue": ev.ActualValue}
	case events.LeadLost:
		a.Type = domain.ActivityLost
		a.Title = "Lead lost"
		a.Metadata = map[string]any{"stageId": ev.StageID.String(), "reason": ev.Reason}
	case events.LeadUpdated:
		a.Type = domain.ActivityUpdated
		a.Title = "Lead updated"
		a.Metadata = map[string]any{"fields": ev.Fields}
	case events.LeadDeleted:
		a.Type = domain.ActivityDeleted
		a.Title = "Lead deleted"
		a.Metadata = map[string]any{"stageId": ev.StageID.String()}
	default:
		return repository.Activity{}, false
	}
	return a, true
}
