package repository

import (
	"context"
	"testing"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFixture struct {
	store    *Memory
	tenant   uuid.UUID
	pipeline Pipeline
	stages   []Stage
}

func newMemFixture(t *testing.T) memFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	tenant := uuid.New()
	p := Pipeline{ID: uuid.New(), TenantID: tenant, Name: "Sales", CreatedAt: now, UpdatedAt: now}
	stages := []Stage{
		{ID: uuid.New(), PipelineID: p.ID, TenantID: tenant, Name: "A", DefaultProbability: 10, Ordinal: 1},
		{ID: uuid.New(), PipelineID: p.ID, TenantID: tenant, Name: "B", DefaultProbability: 50, Ordinal: 2},
	}
	store := NewMemory()
	require.NoError(t, store.CreatePipeline(ctx, p, stages))
	return memFixture{store: store, tenant: tenant, pipeline: p, stages: stages}
}

func (f memFixture) lead(stage Stage, position int64) Lead {
	now := time.Now().UTC()
	return Lead{
		ID:             uuid.New(),
		TenantID:       f.tenant,
		PipelineID:     f.pipeline.ID,
		StageID:        stage.ID,
		Position:       position,
		Title:          "Deal",
		ContactRef:     "contact-1",
		EstimatedValue: decimal.NewFromInt(100),
		Currency:       domain.DefaultCurrency,
		Probability:    stage.DefaultProbability,
		Status:         domain.StatusOpen,
		Tags:           []string{"a"},
		StageChangedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryInsertRejectsDuplicatePosition(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.InsertLead(ctx, f.lead(f.stages[0], 1000), nil))
	err := f.store.InsertLead(ctx, f.lead(f.stages[0], 1000), nil)
	assert.ErrorIs(t, err, ErrPositionConflict)
}

func TestMemoryInsertAppliesRenumberAtomically(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	a := f.lead(f.stages[0], 1)
	b := f.lead(f.stages[0], 2)
	require.NoError(t, f.store.InsertLead(ctx, a, nil))
	require.NoError(t, f.store.InsertLead(ctx, b, nil))

	c := f.lead(f.stages[0], 1500)
	renumber := []LeadPosition{{LeadID: a.ID, Position: 1000}, {LeadID: b.ID, Position: 2000}}
	require.NoError(t, f.store.InsertLead(ctx, c, renumber))

	positions, err := f.store.ListStagePositions(ctx, f.tenant, f.stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []LeadPosition{
		{LeadID: a.ID, Position: 1000},
		{LeadID: c.ID, Position: 1500},
		{LeadID: b.ID, Position: 2000},
	}, positions)
}

func TestMemoryApplyMoveDetectsStaleSource(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	_, err := f.store.ApplyMove(ctx, MoveParams{
		TenantID:    f.tenant,
		LeadID:      l.ID,
		FromStageID: f.stages[1].ID,
		ToStageID:   f.stages[1].ID,
		Position:    1000,
	})
	assert.ErrorIs(t, err, ErrStaleLead)
}

func TestMemoryApplyMoveAcrossStages(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	changed := time.Now().UTC().Add(time.Minute)
	moved, err := f.store.ApplyMove(ctx, MoveParams{
		TenantID:       f.tenant,
		LeadID:         l.ID,
		FromStageID:    f.stages[0].ID,
		ToStageID:      f.stages[1].ID,
		Position:       1000,
		Probability:    50,
		StageChangedAt: &changed,
		UpdatedAt:      changed,
	})
	require.NoError(t, err)
	assert.Equal(t, f.stages[1].ID, moved.StageID)
	assert.Equal(t, 50, moved.Probability)
	assert.True(t, moved.StageChangedAt.Equal(changed))

	src, err := f.store.ListLeadsByStage(ctx, f.tenant, f.stages[0].ID)
	require.NoError(t, err)
	assert.Empty(t, src)
}

func TestMemoryCloseLeadIsTerminal(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	reason := "price"
	closed, err := f.store.CloseLead(ctx, CloseParams{
		TenantID:   f.tenant,
		LeadID:     l.ID,
		StageID:    l.StageID,
		Status:     domain.StatusLost,
		LostReason: &reason,
		ClosedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLost, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.store.CloseLead(ctx, CloseParams{TenantID: f.tenant, LeadID: l.ID, StageID: l.StageID, Status: domain.StatusWon})
	assert.ErrorIs(t, err, ErrLeadClosed)

	probability := 40
	_, err = f.store.UpdateLead(ctx, LeadPatch{TenantID: f.tenant, LeadID: l.ID, Probability: &probability})
	assert.ErrorIs(t, err, ErrLeadClosed)

	title := "Renamed"
	renamed, err := f.store.UpdateLead(ctx, LeadPatch{TenantID: f.tenant, LeadID: l.ID, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)
	assert.Equal(t, domain.StatusLost, renamed.Status)
}

func TestMemoryUpdateLeadWritesOnlyPatchedFields(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	assignee := uuid.New()
	l.AssignedTo = &assignee
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	_, err := f.store.ApplyMove(ctx, MoveParams{
		TenantID: f.tenant, LeadID: l.ID, FromStageID: l.StageID, ToStageID: f.stages[1].ID,
		Position: 1000, Probability: 50, UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	tags := []string{"vip"}
	updated, err := f.store.UpdateLead(ctx, LeadPatch{TenantID: f.tenant, LeadID: l.ID, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, updated.Tags)
	assert.Equal(t, 50, updated.Probability)
	assert.Equal(t, f.stages[1].ID, updated.StageID)
	assert.Equal(t, "Deal", updated.Title)
	require.NotNil(t, updated.AssignedTo)

	cleared, err := f.store.UpdateLead(ctx, LeadPatch{TenantID: f.tenant, LeadID: l.ID, SetAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssignedTo)
	assert.Equal(t, []string{"vip"}, cleared.Tags)

	_, err = f.store.UpdateLead(ctx, LeadPatch{TenantID: uuid.New(), LeadID: l.ID, Tags: &tags})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIsTenantIsolated(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	other := uuid.New()
	_, err := f.store.GetLead(ctx, other, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.GetPipeline(ctx, other, f.pipeline.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.store.DeleteLead(ctx, other, l.ID), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	got, err := f.store.GetLead(ctx, f.tenant, l.ID)
	require.NoError(t, err)
	got.Tags[0] = "mutated"

	again, err := f.store.GetLead(ctx, f.tenant, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestMemoryDeleteGuards(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	l := f.lead(f.stages[0], 1000)
	require.NoError(t, f.store.InsertLead(ctx, l, nil))

	assert.ErrorIs(t, f.store.DeleteStage(ctx, f.tenant, f.stages[0].ID), ErrNotEmpty)
	assert.ErrorIs(t, f.store.DeletePipeline(ctx, f.tenant, f.pipeline.ID), ErrNotEmpty)

	require.NoError(t, f.store.DeleteLead(ctx, f.tenant, l.ID))
	require.NoError(t, f.store.DeleteStage(ctx, f.tenant, f.stages[0].ID))
	require.NoError(t, f.store.DeletePipeline(ctx, f.tenant, f.pipeline.ID))

	stages, err := f.store.ListStages(ctx, f.tenant, f.pipeline.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestMemoryReorderStages(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	err := f.store.ReorderStages(ctx, f.tenant, f.pipeline.ID, []StageOrdinal{
		{StageID: f.stages[0].ID, Ordinal: 2},
		{StageID: f.stages[1].ID, Ordinal: 1},
	})
	require.NoError(t, err)

	stages, err := f.store.ListStages(ctx, f.tenant, f.pipeline.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, f.stages[1].ID, stages[0].ID)

	err = f.store.ReorderStages(ctx, f.tenant, f.pipeline.ID, []StageOrdinal{
		{StageID: f.stages[0].ID, Ordinal: 3},
		{StageID: f.stages[1].ID, Ordinal: 3},
	})
	assert.ErrorIs(t, err, ErrOrdinalTaken)
}

func TestMemoryPipelinesListInCreationOrder(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	tenant := uuid.New()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := Pipeline{ID: uuid.New(), TenantID: tenant, Name: "first", CreatedAt: at}
	second := Pipeline{ID: uuid.New(), TenantID: tenant, Name: "second", CreatedAt: at}
	require.NoError(t, store.CreatePipeline(ctx, first, nil))
	require.NoError(t, store.CreatePipeline(ctx, second, nil))

	items, err := store.ListPipelines(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Name)
	assert.Equal(t, "second", items[1].Name)
}

func TestMemoryActivitiesNewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	tenant, lead := uuid.New(), uuid.New()

	for _, kind := range []domain.ActivityType{domain.ActivityCreated, domain.ActivityStageChange, domain.ActivityWon} {
		require.NoError(t, store.AddActivity(ctx, Activity{ID: uuid.New(), LeadID: lead, TenantID: tenant, Type: kind}))
	}

	items, err := store.ListActivities(ctx, tenant, lead, 10)
	require.NoError(t, err)
	require.NoError(t, store.AddActivity(ctx, items[0]))
	again, err := store.ListActivities(ctx, tenant, lead, 10)
	require.NoError(t, err)
	assert.Len(t, again, 3)

	items, err = store.ListActivities(ctx, tenant, lead, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.ActivityWon, items[0].Type)
	assert.Equal(t, domain.ActivityStageChange, items[1].Type)
}

func TestMemorySearchLeadsOrdersAndPages(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()
	late := f.lead(f.stages[1], 1000)
	late.Title = "Proposal for Initech"
	early := f.lead(f.stages[0], 2000)
	early.Priority = domain.PriorityHigh
	first := f.lead(f.stages[0], 1000)
	first.Description = "Met at the INITECH booth"
	for _, l := range []Lead{late, early, first} {
		require.NoError(t, f.store.InsertLead(ctx, l, nil))
	}

	items, total, err := f.store.SearchLeads(ctx, f.tenant, LeadQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, []uuid.UUID{first.ID, early.ID, late.ID}, []uuid.UUID{items[0].ID, items[1].ID, items[2].ID})

	items, total, err = f.store.SearchLeads(ctx, f.tenant, LeadQuery{Search: "initech"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, first.ID, items[0].ID)

	high := domain.PriorityHigh
	items, total, err = f.store.SearchLeads(ctx, f.tenant, LeadQuery{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, early.ID, items[0].ID)

	items, total, err = f.store.SearchLeads(ctx, f.tenant, LeadQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, late.ID, items[0].ID)

	items, total, err = f.store.SearchLeads(ctx, f.tenant, LeadQuery{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, items)
}
