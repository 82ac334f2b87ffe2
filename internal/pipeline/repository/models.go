package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStaleLead        = errors.New("lead changed stage concurrently")
	ErrLeadClosed       = errors.New("lead is no longer open")
	ErrPositionConflict = errors.New("position already taken in stage")
	// ErrPositionRace is a position conflict reported by the database after
	// another writer committed to the stage first.
	ErrPositionRace = errors.New("stage changed concurrently")
	ErrOrdinalTaken     = errors.New("ordinal already taken in pipeline")
	ErrNotEmpty         = errors.New("still holds leads")
)

type Pipeline struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Description string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Stage struct {
	ID                 uuid.UUID
	PipelineID         uuid.UUID
	TenantID           uuid.UUID
	Name               string
	Description        string
	Color              string
	DefaultProbability int
	Ordinal            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Lead struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	PipelineID        uuid.UUID
	StageID           uuid.UUID
	Position          int64
	Title             string
	Description       string
	ContactRef        string
	EstimatedValue    decimal.Decimal
	Currency          string
	Probability       int
	Source            domain.LeadSource
	Priority          domain.LeadPriority
	Status            domain.LeadStatus
	ActualValue       *decimal.Decimal
	LostReason        *string
	Tags              []string
	AssignedTo        *uuid.UUID
	ExpectedCloseDate *time.Time
	LastContactAt     *time.Time
	StageChangedAt    time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Activity struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	TenantID  uuid.UUID
	Type      domain.ActivityType
	Title     string
	Metadata  map[string]any
	ActorID   *uuid.UUID
	CreatedAt time.Time
}

// LeadPosition is one entry of a stage's ordered position list.
type LeadPosition struct {
	LeadID   uuid.UUID
	Position int64
}

// LeadFilter narrows pipeline-wide lead reads. Zero values mean "no filter".
type LeadFilter struct {
	Status      *domain.LeadStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// LeadQuery selects a page of the tenant's leads. Nil fields match any
// value; Search is a case-insensitive substring of title, description or
// contact reference.
type LeadQuery struct {
	PipelineID *uuid.UUID
	StageID    *uuid.UUID
	Status     *domain.LeadStatus
	Priority   *domain.LeadPriority
	AssignedTo *uuid.UUID
	Search     string
	Limit      int
	Offset     int
}

// LeadPatch lists the attributes an edit changes. Nil fields keep the stored
// value, so concurrent moves and closes are never overwritten.
type LeadPatch struct {
	TenantID          uuid.UUID
	LeadID            uuid.UUID
	Title             *string
	Description       *string
	ContactRef        *string
	EstimatedValue    *decimal.Decimal
	Probability       *int
	Source            *domain.LeadSource
	Priority          *domain.LeadPriority
	Tags              *[]string
	SetAssignee       bool
	AssignedTo        *uuid.UUID
	ExpectedCloseDate *time.Time
	LastContactAt     *time.Time
	UpdatedAt         time.Time
}

// RequiresOpen reports whether the patch touches fields that freeze on close.
func (p LeadPatch) RequiresOpen() bool {
	return p.EstimatedValue != nil || p.Probability != nil
}

// MoveParams describes one committed move. Renumber, when set, rewrites the
// positions of the other leads in the target stage in the same transaction.
type MoveParams struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	FromStageID    uuid.UUID
	ToStageID      uuid.UUID
	Position       int64
	Probability    int
	StageChangedAt *time.Time
	Renumber       []LeadPosition
	UpdatedAt      time.Time
}

// CloseParams moves an OPEN lead into a terminal status.
type CloseParams struct {
	TenantID    uuid.UUID
	LeadID      uuid.UUID
	StageID     uuid.UUID
	Status      domain.LeadStatus
	ActualValue *decimal.Decimal
	LostReason  *string
	Probability int
	ClosedAt    time.Time
}

// StageOrdinal assigns an ordinal to a stage during reorder.
type StageOrdinal struct {
	StageID uuid.UUID
	Ordinal int
}

func cloneLead(l Lead) Lead {
	out := l
	if l.Tags != nil {
		out.Tags = append([]string(nil), l.Tags...)
	} else {
		out.Tags = []string{}
	}
	if l.ActualValue != nil {
		v := *l.ActualValue
		out.ActualValue = &v
	}
	if l.LostReason != nil {
		v := *l.LostReason
		out.LostReason = &v
	}
	if l.AssignedTo != nil {
		v := *l.AssignedTo
		out.AssignedTo = &v
	}
	if l.ExpectedCloseDate != nil {
		v := *l.ExpectedCloseDate
		out.ExpectedCloseDate = &v
	}
	if l.LastContactAt != nil {
		v := *l.LastContactAt
		out.LastContactAt = &v
	}
	if l.ClosedAt != nil {
		v := *l.ClosedAt
		out.ClosedAt = &v
	}
	return out
}

func cloneActivity(a Activity) Activity {
	out := a
	if a.Metadata != nil {
		out.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	if a.ActorID != nil {
		v := *a.ActorID
		out.ActorID = &v
	}
	return out
}

func (f LeadFilter) matches(l Lead) bool {
	if f.Status != nil && l.Status != *f.Status {
		return false
	}
	if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !l.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	return true
}

func (q LeadQuery) matches(l Lead) bool {
	switch {
	case q.PipelineID != nil && l.PipelineID != *q.PipelineID:
		return false
	case q.StageID != nil && l.StageID != *q.StageID:
		return false
	case q.Status != nil && l.Status != *q.Status:
		return false
	case q.Priority != nil && l.Priority != *q.Priority:
		return false
	case q.AssignedTo != nil && (l.AssignedTo == nil || *l.AssignedTo != *q.AssignedTo):
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	for _, field := range []string{l.Title, l.Description, l.ContactRef} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
