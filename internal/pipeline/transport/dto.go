package transport

import (
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pipelines

type StageRequest struct {
	Name               string `json:"name" validate:"required,min=1,max=100"`
	Description        string `json:"description,omitempty" validate:"max=500"`
	Color              string `json:"color,omitempty" validate:"omitempty,max=20"`
	DefaultProbability *int   `json:"defaultProbability,omitempty" validate:"omitempty,min=0,max=100"`
	Ordinal            *int   `json:"ordinal,omitempty" validate:"omitempty,min=0"`
}

type CreatePipelineRequest struct {
	Name        string         `json:"name" validate:"required,min=1,max=120"`
	Description string         `json:"description,omitempty" validate:"max=1000"`
	Color       string         `json:"color,omitempty" validate:"omitempty,max=20"`
	Stages      []StageRequest `json:"stages" validate:"omitempty,max=50,dive"`
}

type UpdatePipelineRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Color       *string `json:"color,omitempty" validate:"omitempty,max=20"`
}

type UpdateStageRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description        *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Color              *string `json:"color,omitempty" validate:"omitempty,max=20"`
	DefaultProbability *int    `json:"defaultProbability,omitempty" validate:"omitempty,min=0,max=100"`
}

type ReorderStagesRequest struct {
	StageIDs []uuid.UUID `json:"stageIds" validate:"required,min=1"`
}

type PipelineResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type StageResponse struct {
	ID                 uuid.UUID `json:"id"`
	PipelineID         uuid.UUID `json:"pipelineId"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Color              string    `json:"color"`
	DefaultProbability int       `json:"defaultProbability"`
	Ordinal            int       `json:"ordinal"`
}

type PipelineListResponse struct {
	Items []PipelineResponse `json:"items"`
}

type StageListResponse struct {
	Items []StageResponse `json:"items"`
}

// Leads

type CreateLeadRequest struct {
	PipelineID        uuid.UUID           `json:"pipelineId" validate:"required"`
	StageID           uuid.UUID           `json:"stageId" validate:"required"`
	Title             string              `json:"title" validate:"required,min=1,max=200"`
	Description       string              `json:"description,omitempty" validate:"max=2000"`
	ContactRef        string              `json:"contactRef" validate:"required,min=1,max=200"`
	EstimatedValue    decimal.Decimal     `json:"estimatedValue"`
	Currency          string              `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Probability       *int                `json:"probability,omitempty" validate:"omitempty,min=0,max=100"`
	Source            domain.LeadSource   `json:"source,omitempty" validate:"omitempty,oneof=WEBSITE REFERRAL SOCIAL_MEDIA EVENT COLD_CALL WHATSAPP OTHER"`
	Priority          domain.LeadPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH VERY_HIGH"`
	Tags              []string            `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	AssigneeID        *uuid.UUID          `json:"assigneeId,omitempty"`
	ExpectedCloseDate *time.Time          `json:"expectedCloseDate,omitempty"`
}

type UpdateLeadRequest struct {
	Title             *string              `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description       *string              `json:"description,omitempty" validate:"omitempty,max=2000"`
	ContactRef        *string              `json:"contactRef,omitempty" validate:"omitempty,min=1,max=200"`
	EstimatedValue    *decimal.Decimal     `json:"estimatedValue,omitempty"`
	Probability       *int                 `json:"probability,omitempty" validate:"omitempty,min=0,max=100"`
	Source            *domain.LeadSource   `json:"source,omitempty" validate:"omitempty,oneof=WEBSITE REFERRAL SOCIAL_MEDIA EVENT COLD_CALL WHATSAPP OTHER"`
	Priority          *domain.LeadPriority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH VERY_HIGH"`
	Tags              *[]string            `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	AssigneeID        OptionalUUID         `json:"assigneeId,omitempty" validate:"-"`
	ExpectedCloseDate *time.Time           `json:"expectedCloseDate,omitempty"`
	LastContactAt     *time.Time           `json:"lastContactAt,omitempty"`
}

// MoveLeadRequest places a lead at TargetIndex among the target stage's
// leads. Out-of-range indexes are clamped.
type MoveLeadRequest struct {
	TargetStageID uuid.UUID `json:"targetStageId" validate:"required"`
	TargetIndex   int       `json:"targetIndex"`
	Probability   *int      `json:"probability,omitempty" validate:"omitempty,min=0,max=100"`
}

type MarkWonRequest struct {
	ActualValue decimal.Decimal `json:"actualValue"`
}

type MarkLostRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

type LeadResponse struct {
	ID                uuid.UUID  `json:"id"`
	PipelineID        uuid.UUID  `json:"pipelineId"`
	StageID           uuid.UUID  `json:"stageId"`
	Position          int64      `json:"position"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	ContactRef        string     `json:"contactRef"`
	EstimatedValue    string     `json:"estimatedValue"`
	Currency          string     `json:"currency"`
	Probability       int        `json:"probability"`
	WeightedValue     string     `json:"weightedValue"`
	Source            string     `json:"source"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	ActualValue       *string    `json:"actualValue,omitempty"`
	LostReason        *string    `json:"lostReason,omitempty"`
	Tags              []string   `json:"tags"`
	AssigneeID        *uuid.UUID `json:"assigneeId,omitempty"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate,omitempty"`
	LastContactAt     *time.Time `json:"lastContactAt,omitempty"`
	StageChangedAt    time.Time  `json:"stageChangedAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
}

type AddActivityRequest struct {
	Type            domain.ActivityType `json:"type" validate:"required,oneof=CALL MEETING EMAIL MESSAGE NOTE"`
	Title           string              `json:"title" validate:"required,min=1,max=200"`
	Description     string              `json:"description,omitempty" validate:"max=2000"`
	OccurredAt      *time.Time          `json:"occurredAt,omitempty"`
	DurationMinutes *int                `json:"durationMinutes,omitempty" validate:"omitempty,min=0,max=1440"`
}

type ActivityResponse struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LeadSearchQuery filters the tenant-wide lead list. Page is 1-based.
type LeadSearchQuery struct {
	PipelineID string `form:"pipelineId" validate:"omitempty,uuid"`
	StageID    string `form:"stageId" validate:"omitempty,uuid"`
	Status     string `form:"status" validate:"omitempty,oneof=OPEN WON LOST"`
	Priority   string `form:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH VERY_HIGH"`
	AssignedTo string `form:"assignedTo" validate:"omitempty,uuid"`
	Search     string `form:"search" validate:"omitempty,max=200"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	Limit      int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

type LeadPageResponse struct {
	Items      []LeadResponse `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

type ActivityListResponse struct {
	Items []ActivityResponse `json:"items"`
}

// Board and metrics

type BoardQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=OPEN WON LOST"`
}

type MetricsQuery struct {
	From string `form:"from" validate:"omitempty,max=50"`
	To   string `form:"to" validate:"omitempty,max=50"`
}

type BoardStageResponse struct {
	StageResponse
	Count      int            `json:"count"`
	TotalValue string         `json:"totalValue"`
	Leads      []LeadResponse `json:"leads"`
}

type BoardResponse struct {
	Pipeline PipelineResponse     `json:"pipeline"`
	Stages   []BoardStageResponse `json:"stages"`
}

type StageMetricsResponse struct {
	StageID            uuid.UUID `json:"stageId"`
	Name               string    `json:"name"`
	OpenCount          int       `json:"openCount"`
	OpenValue          string    `json:"openValue"`
	AverageProbability float64   `json:"averageProbability"`
	WeightedValue      string    `json:"weightedValue"`
}

type FunnelStepResponse struct {
	StageID    uuid.UUID `json:"stageId"`
	Name       string    `json:"name"`
	Count      int       `json:"count"`
	Reached    int       `json:"reached"`
	Conversion float64   `json:"conversion"`
}

type FunnelResponse struct {
	Steps []FunnelStepResponse `json:"steps"`
	Won   int                  `json:"won"`
	Lost  int                  `json:"lost"`
}

type SummaryResponse struct {
	TotalLeads    int     `json:"totalLeads"`
	OpenValue     string  `json:"openValue"`
	WonCount      int     `json:"wonCount"`
	WonValue      string  `json:"wonValue"`
	LostCount     int     `json:"lostCount"`
	LostValue     string  `json:"lostValue"`
	WinRate       float64 `json:"winRate"`
	AverageDeal   string  `json:"averageDeal"`
	WeightedValue string  `json:"weightedValue"`
}

type MetricsResponse struct {
	PipelineID uuid.UUID              `json:"pipelineId"`
	From       *time.Time             `json:"from,omitempty"`
	To         *time.Time             `json:"to,omitempty"`
	Stages     []StageMetricsResponse `json:"stages"`
	Funnel     FunnelResponse         `json:"funnel"`
	Summary    SummaryResponse        `json:"summary"`
	ComputedAt time.Time              `json:"computedAt"`
}
