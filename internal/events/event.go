// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Event names.
const (
	NameLeadCreated              = "pipeline.lead.created"
	NameLeadMoved                = "pipeline.lead.moved"
	NameLeadWon                  = "pipeline.lead.won"
	NameLeadLost                 = "pipeline.lead.lost"
	NameLeadUpdated              = "pipeline.lead.updated"
	NameLeadDeleted              = "pipeline.lead.deleted"
	NameLeadContacted            = "pipeline.lead.contacted"
	NameStagePositionsRenumbered = "pipeline.stage.positions_renumbered"
)

// TenantScoped is implemented by every pipeline event so sinks can route
// them without a type switch.
type TenantScoped interface {
	Event
	Tenant() uuid.UUID
}

// LeadScoped events belong to a single lead.
type LeadScoped interface {
	TenantScoped
	Lead() uuid.UUID
	Actor() uuid.UUID
}

// LeadHeader carries the fields every lead event shares.
type LeadHeader struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	PipelineID uuid.UUID `json:"pipelineId"`
	LeadID     uuid.UUID `json:"leadId"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (h LeadHeader) Tenant() uuid.UUID { return h.TenantID }
func (h LeadHeader) Lead() uuid.UUID   { return h.LeadID }
func (h LeadHeader) Actor() uuid.UUID  { return h.ActorID }

// NewLeadHeader stamps the event time.
func NewLeadHeader(tenantID, pipelineID, leadID, actorID uuid.UUID) LeadHeader {
	return LeadHeader{
		BaseEvent:  NewBaseEvent(),
		TenantID:   tenantID,
		PipelineID: pipelineID,
		LeadID:     leadID,
		ActorID:    actorID,
	}
}

// LeadCreated is published after a lead is appended to its first stage.
type LeadCreated struct {
	LeadHeader
	StageID  uuid.UUID `json:"stageId"`
	Position int64     `json:"position"`
	Title    string    `json:"title"`
}

func (e LeadCreated) EventName() string { return NameLeadCreated }

// LeadMoved is published after a committed move, including reorders within one stage.
type LeadMoved struct {
	LeadHeader
	FromStageID uuid.UUID `json:"fromStageId"`
	ToStageID   uuid.UUID `json:"toStageId"`
	Position    int64     `json:"position"`
	Probability int       `json:"probability"`
}

func (e LeadMoved) EventName() string { return NameLeadMoved }

// CrossStage reports whether the lead changed stage.
func (e LeadMoved) CrossStage() bool { return e.FromStageID != e.ToStageID }

// LeadWon is published when a lead reaches WON.
type LeadWon struct {
	LeadHeader
	StageID     uuid.UUID `json:"stageId"`
	ActualValue string    `json:"actualValue"`
}

func (e LeadWon) EventName() string { return NameLeadWon }

// LeadLost is published when a lead reaches LOST.
type LeadLost struct {
	LeadHeader
	StageID uuid.UUID `json:"stageId"`
	Reason  string    `json:"reason"`
}

func (e LeadLost) EventName() string { return NameLeadLost }

// LeadUpdated is published after attribute edits.
type LeadUpdated struct {
	LeadHeader
	Fields []string `json:"fields"`
}

func (e LeadUpdated) EventName() string { return NameLeadUpdated }

// LeadDeleted is published after a lead row is removed.
type LeadDeleted struct {
	LeadHeader
	StageID uuid.UUID `json:"stageId"`
}

func (e LeadDeleted) EventName() string { return NameLeadDeleted }

// LeadContacted is published after a user logs a call, meeting or note.
// The activity entry is already stored when it fires.
type LeadContacted struct {
	LeadHeader
	ActivityID   uuid.UUID `json:"activityId"`
	ActivityType string    `json:"activityType"`
	ContactedAt  time.Time `json:"contactedAt"`
}

func (e LeadContacted) EventName() string { return NameLeadContacted }

// StagePositionsRenumbered is published when a stage was locally renumbered.
type StagePositionsRenumbered struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	PipelineID uuid.UUID `json:"pipelineId"`
	StageID    uuid.UUID `json:"stageId"`
	LeadCount  int       `json:"leadCount"`
}

func (e StagePositionsRenumbered) EventName() string { return NameStagePositionsRenumbered }
func (e StagePositionsRenumbered) Tenant() uuid.UUID { return e.TenantID }

// AllNames lists every pipeline event, for sinks that subscribe to all of them.
var AllNames = []string{
	NameLeadCreated,
	NameLeadMoved,
	NameLeadWon,
	NameLeadLost,
	NameLeadUpdated,
	NameLeadDeleted,
	NameLeadContacted,
	NameStagePositionsRenumbered,
}
