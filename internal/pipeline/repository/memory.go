package repository

import (
	"context"
	"sort"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

type memPipeline struct {
	Pipeline
	seq int64
}

// Memory is an in-process Store. Every write runs in one critical section
// so readers only ever see committed state. Values are copied on the way in
// and out.
type Memory struct {
	mu         deadlock.RWMutex
	seq        int64
	pipelines  map[uuid.UUID]memPipeline
	stages     map[uuid.UUID]Stage
	leads      map[uuid.UUID]Lead
	activities map[uuid.UUID][]Activity
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		pipelines:  make(map[uuid.UUID]memPipeline),
		stages:     make(map[uuid.UUID]Stage),
		leads:      make(map[uuid.UUID]Lead),
		activities: make(map[uuid.UUID][]Activity),
	}
}

// =====================================
// Pipelines
// =====================================

func (m *Memory) GetPipeline(_ context.Context, tenantID, id uuid.UUID) (Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok || p.TenantID != tenantID {
		return Pipeline{}, ErrNotFound
	}
	return p.Pipeline, nil
}

func (m *Memory) ListPipelines(_ context.Context, tenantID uuid.UUID) ([]Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]memPipeline, 0)
	for _, p := range m.pipelines {
		if p.TenantID == tenantID {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].seq < items[j].seq
	})
	out := make([]Pipeline, len(items))
	for i, p := range items {
		out[i] = p.Pipeline
	}
	return out, nil
}

// ListAllPipelines returns every tenant's pipelines in insertion order.
func (m *Memory) ListAllPipelines(_ context.Context) ([]Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]memPipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]Pipeline, len(items))
	for i, p := range items {
		out[i] = p.Pipeline
	}
	return out, nil
}

func (m *Memory) CreatePipeline(_ context.Context, p Pipeline, stages []Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int]struct{}, len(stages))
	for _, s := range stages {
		if _, dup := seen[s.Ordinal]; dup {
			return ErrOrdinalTaken
		}
		seen[s.Ordinal] = struct{}{}
	}

	m.seq++
	m.pipelines[p.ID] = memPipeline{Pipeline: p, seq: m.seq}
	for _, s := range stages {
		m.stages[s.ID] = s
	}
	return nil
}

func (m *Memory) UpdatePipeline(_ context.Context, p Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pipelines[p.ID]
	if !ok || cur.TenantID != p.TenantID {
		return ErrNotFound
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Color = p.Color
	cur.UpdatedAt = p.UpdatedAt
	m.pipelines[p.ID] = cur
	return nil
}

func (m *Memory) DeletePipeline(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	if !ok || p.TenantID != tenantID {
		return ErrNotFound
	}
	for _, l := range m.leads {
		if l.PipelineID == id {
			return ErrNotEmpty
		}
	}
	for sid, s := range m.stages {
		if s.PipelineID == id {
			delete(m.stages, sid)
		}
	}
	delete(m.pipelines, id)
	return nil
}

// =====================================
// Stages
// =====================================

func (m *Memory) GetStage(_ context.Context, tenantID, id uuid.UUID) (Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[id]
	if !ok || s.TenantID != tenantID {
		return Stage{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListStages(_ context.Context, tenantID, pipelineID uuid.UUID) ([]Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stage, 0)
	for _, s := range m.stages {
		if s.PipelineID == pipelineID && s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *Memory) CreateStage(_ context.Context, s Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[s.PipelineID]
	if !ok || p.TenantID != s.TenantID {
		return ErrNotFound
	}
	for _, other := range m.stages {
		if other.PipelineID == s.PipelineID && other.Ordinal == s.Ordinal {
			return ErrOrdinalTaken
		}
	}
	m.stages[s.ID] = s
	return nil
}

func (m *Memory) UpdateStage(_ context.Context, s Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.stages[s.ID]
	if !ok || cur.TenantID != s.TenantID {
		return ErrNotFound
	}
	cur.Name = s.Name
	cur.Description = s.Description
	cur.Color = s.Color
	cur.DefaultProbability = s.DefaultProbability
	cur.UpdatedAt = s.UpdatedAt
	m.stages[s.ID] = cur
	return nil
}

func (m *Memory) ReorderStages(_ context.Context, tenantID, pipelineID uuid.UUID, ordinals []StageOrdinal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int]struct{}, len(ordinals))
	for _, o := range ordinals {
		s, ok := m.stages[o.StageID]
		if !ok || s.TenantID != tenantID || s.PipelineID != pipelineID {
			return ErrNotFound
		}
		if _, dup := seen[o.Ordinal]; dup {
			return ErrOrdinalTaken
		}
		seen[o.Ordinal] = struct{}{}
	}
	for _, o := range ordinals {
		s := m.stages[o.StageID]
		s.Ordinal = o.Ordinal
		m.stages[o.StageID] = s
	}
	return nil
}

func (m *Memory) DeleteStage(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stages[id]
	if !ok || s.TenantID != tenantID {
		return ErrNotFound
	}
	for _, l := range m.leads {
		if l.StageID == id {
			return ErrNotEmpty
		}
	}
	delete(m.stages, id)
	return nil
}

// =====================================
// Leads
// =====================================

func (m *Memory) GetLead(_ context.Context, tenantID, id uuid.UUID) (Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok || l.TenantID != tenantID {
		return Lead{}, ErrNotFound
	}
	return cloneLead(l), nil
}

func (m *Memory) ListLeadsByStage(_ context.Context, tenantID, stageID uuid.UUID) ([]Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Lead, 0)
	for _, l := range m.leads {
		if l.StageID == stageID && l.TenantID == tenantID {
			out = append(out, cloneLead(l))
		}
	}
	sortByPosition(out)
	return out, nil
}

func (m *Memory) ListLeadsByPipeline(_ context.Context, tenantID, pipelineID uuid.UUID, filter LeadFilter) ([]Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Lead, 0)
	for _, l := range m.leads {
		if l.PipelineID == pipelineID && l.TenantID == tenantID && filter.matches(l) {
			out = append(out, cloneLead(l))
		}
	}
	sortByPosition(out)
	return out, nil
}

func (m *Memory) SearchLeads(_ context.Context, tenantID uuid.UUID, q LeadQuery) ([]Lead, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]Lead, 0)
	for _, l := range m.leads {
		if l.TenantID == tenantID && q.matches(l) {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.PipelineID != b.PipelineID {
			return a.PipelineID.String() < b.PipelineID.String()
		}
		if oa, ob := m.stages[a.StageID].Ordinal, m.stages[b.StageID].Ordinal; oa != ob {
			return oa < ob
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	out := make([]Lead, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, cloneLead(l))
	}
	return out, total, nil
}

func (m *Memory) ListStagePositions(_ context.Context, tenantID, stageID uuid.UUID) ([]LeadPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stagePositionsLocked(tenantID, stageID), nil
}

func (m *Memory) stagePositionsLocked(tenantID, stageID uuid.UUID) []LeadPosition {
	out := make([]LeadPosition, 0)
	for _, l := range m.leads {
		if l.StageID == stageID && l.TenantID == tenantID {
			out = append(out, LeadPosition{LeadID: l.ID, Position: l.Position})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *Memory) InsertLead(_ context.Context, lead Lead, renumber []LeadPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stages[lead.StageID]
	if !ok || s.TenantID != lead.TenantID || s.PipelineID != lead.PipelineID {
		return ErrNotFound
	}

	next := m.applyRenumberPreview(lead.StageID, renumber)
	for id, pos := range next {
		if id != lead.ID && pos == lead.Position {
			return ErrPositionConflict
		}
	}

	m.commitRenumber(renumber)
	m.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (m *Memory) UpdateLead(_ context.Context, p LeadPatch) (Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leads[p.LeadID]
	if !ok || cur.TenantID != p.TenantID {
		return Lead{}, ErrNotFound
	}
	if p.RequiresOpen() && cur.Status != domain.StatusOpen {
		return Lead{}, ErrLeadClosed
	}

	if p.Title != nil {
		cur.Title = *p.Title
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	if p.ContactRef != nil {
		cur.ContactRef = *p.ContactRef
	}
	if p.EstimatedValue != nil {
		cur.EstimatedValue = *p.EstimatedValue
	}
	if p.Probability != nil {
		cur.Probability = *p.Probability
	}
	if p.Source != nil {
		cur.Source = *p.Source
	}
	if p.Priority != nil {
		cur.Priority = *p.Priority
	}
	if p.Tags != nil {
		cur.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.SetAssignee {
		cur.AssignedTo = p.AssignedTo
	}
	if p.ExpectedCloseDate != nil {
		cur.ExpectedCloseDate = p.ExpectedCloseDate
	}
	if p.LastContactAt != nil {
		cur.LastContactAt = p.LastContactAt
	}
	cur.UpdatedAt = p.UpdatedAt
	m.leads[p.LeadID] = cloneLead(cur)
	return cloneLead(cur), nil
}

func (m *Memory) ApplyMove(_ context.Context, p MoveParams) (Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leads[p.LeadID]
	if !ok || cur.TenantID != p.TenantID {
		return Lead{}, ErrNotFound
	}
	if cur.StageID != p.FromStageID {
		return Lead{}, ErrStaleLead
	}
	if cur.Status != domain.StatusOpen {
		return Lead{}, ErrLeadClosed
	}
	target, ok := m.stages[p.ToStageID]
	if !ok || target.TenantID != p.TenantID || target.PipelineID != cur.PipelineID {
		return Lead{}, ErrNotFound
	}

	next := m.applyRenumberPreview(p.ToStageID, p.Renumber)
	for id, pos := range next {
		if id != p.LeadID && pos == p.Position {
			return Lead{}, ErrPositionConflict
		}
	}

	m.commitRenumber(p.Renumber)
	cur.StageID = p.ToStageID
	cur.Position = p.Position
	cur.Probability = p.Probability
	if p.StageChangedAt != nil {
		cur.StageChangedAt = *p.StageChangedAt
	}
	cur.UpdatedAt = p.UpdatedAt
	m.leads[p.LeadID] = cur
	return cloneLead(cur), nil
}

func (m *Memory) CloseLead(_ context.Context, p CloseParams) (Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leads[p.LeadID]
	if !ok || cur.TenantID != p.TenantID {
		return Lead{}, ErrNotFound
	}
	if cur.StageID != p.StageID {
		return Lead{}, ErrStaleLead
	}
	if cur.Status != domain.StatusOpen {
		return Lead{}, ErrLeadClosed
	}

	cur.Status = p.Status
	cur.ActualValue = p.ActualValue
	cur.LostReason = p.LostReason
	cur.Probability = p.Probability
	closedAt := p.ClosedAt
	cur.ClosedAt = &closedAt
	cur.UpdatedAt = p.ClosedAt
	m.leads[p.LeadID] = cloneLead(cur)
	return cloneLead(cur), nil
}

func (m *Memory) DeleteLead(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.leads, id)
	return nil
}

// applyRenumberPreview returns lead id -> position for the stage as it would
// look after the renumber, without mutating anything.
func (m *Memory) applyRenumberPreview(stageID uuid.UUID, renumber []LeadPosition) map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64)
	for _, l := range m.leads {
		if l.StageID == stageID {
			out[l.ID] = l.Position
		}
	}
	for _, r := range renumber {
		out[r.LeadID] = r.Position
	}
	return out
}

func (m *Memory) commitRenumber(renumber []LeadPosition) {
	for _, r := range renumber {
		l, ok := m.leads[r.LeadID]
		if !ok {
			continue
		}
		l.Position = r.Position
		m.leads[r.LeadID] = l
	}
}

// =====================================
// Activities
// =====================================

// AddActivity ignores an entry whose id is already recorded.
func (m *Memory) AddActivity(_ context.Context, a Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.activities[a.LeadID] {
		if existing.ID == a.ID {
			return nil
		}
	}
	m.activities[a.LeadID] = append(m.activities[a.LeadID], cloneActivity(a))
	return nil
}

func (m *Memory) ListActivities(_ context.Context, tenantID, leadID uuid.UUID, limit int) ([]Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.activities[leadID]
	out := make([]Activity, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].TenantID != tenantID {
			continue
		}
		out = append(out, cloneActivity(entries[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func sortByPosition(leads []Lead) {
	sort.Slice(leads, func(i, j int) bool {
		if leads[i].StageID != leads[j].StageID {
			return leads[i].StageID.String() < leads[j].StageID.String()
		}
		return leads[i].Position < leads[j].Position
	})
}

var _ Store = (*Memory)(nil)
