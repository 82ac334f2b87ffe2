package movement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/catalog"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/ledger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/locking"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/metrics"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/placement"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/sequencer"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *repository.Memory
	locker   *locking.Local
	bus      *events.InMemoryBus
	leads    *ledger.Service
	mover    *Coordinator
	tenant   uuid.UUID
	actor    uuid.UUID
	pipeline repository.Pipeline
	stages   []repository.Stage
}

func intPtr(v int) *int { return &v }

// newHarness builds a pipeline with stages Leads (10%), Negotiation (60%) and Closed (90%).
func newHarness(t *testing.T, lockTimeout time.Duration) *harness {
	t.Helper()
	log := logger.Nop()
	store := repository.NewMemory()
	locker := locking.NewLocal(lockTimeout, nil)
	bus := events.NewInMemoryBus(log)
	planner := placement.New(locker, sequencer.New(sequencer.DefaultGap), log, nil)

	h := &harness{
		store:  store,
		locker: locker,
		bus:    bus,
		leads:  ledger.New(store, planner, bus, log, nil),
		mover:  New(store, planner, bus, log, nil),
		tenant: uuid.New(),
		actor:  uuid.New(),
	}

	cat := catalog.New(store, nil, log)
	ctx := context.Background()
	p, err := cat.CreatePipeline(ctx, h.tenant, transport.CreatePipelineRequest{
		Name: "Sales",
		Stages: []transport.StageRequest{
			{Name: "Leads", DefaultProbability: intPtr(10)},
			{Name: "Negotiation", DefaultProbability: intPtr(60)},
			{Name: "Closed", DefaultProbability: intPtr(90)},
		},
	})
	require.NoError(t, err)
	h.pipeline = p
	h.stages, err = cat.ListStages(ctx, h.tenant, p.ID)
	require.NoError(t, err)
	require.Len(t, h.stages, 3)
	return h
}

func (h *harness) create(t *testing.T, stage repository.Stage, title string, value int64) repository.Lead {
	t.Helper()
	lead, err := h.leads.Create(context.Background(), h.tenant, h.actor, transport.CreateLeadRequest{
		PipelineID:     h.pipeline.ID,
		StageID:        stage.ID,
		Title:          title,
		ContactRef:     "contact-" + title,
		EstimatedValue: decimal.NewFromInt(value),
	})
	require.NoError(t, err)
	return lead
}

func (h *harness) move(stage repository.Stage, lead uuid.UUID, index int) (repository.Lead, error) {
	return h.mover.MoveLead(context.Background(), h.tenant, h.actor, lead, transport.MoveLeadRequest{
		TargetStageID: stage.ID,
		TargetIndex:   index,
	})
}

func (h *harness) order(t *testing.T, stage repository.Stage) []uuid.UUID {
	t.Helper()
	leads, err := h.store.ListLeadsByStage(context.Background(), h.tenant, stage.ID)
	require.NoError(t, err)
	out := make([]uuid.UUID, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

func TestBoardScenario(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()
	leadsStage, negotiation := h.stages[0], h.stages[1]

	// A new lead lands at the tail of an empty stage.
	l1 := h.create(t, leadsStage, "L1", 1000)
	assert.Equal(t, int64(1000), l1.Position)
	assert.Equal(t, domain.StatusOpen, l1.Status)
	assert.Equal(t, 10, l1.Probability)

	// Moving across stages takes the target default probability.
	moved, err := h.move(negotiation, l1.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, negotiation.ID, moved.StageID)
	assert.Equal(t, 60, moved.Probability)
	assert.Empty(t, h.order(t, leadsStage))

	// Moving to the head of a stage puts the lead before its neighbours.
	l2 := h.create(t, negotiation, "L2", 500)
	_, err = h.move(negotiation, l2.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{l2.ID, l1.ID}, h.order(t, negotiation))

	// Won leads are frozen.
	won, err := h.mover.MarkWon(ctx, h.tenant, h.actor, l1.ID, transport.MarkWonRequest{ActualValue: decimal.NewFromInt(1200)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWon, won.Status)
	assert.Equal(t, 100, won.Probability)
	require.NotNil(t, won.ClosedAt)
	_, err = h.move(leadsStage, l1.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	report, err := metrics.New(h.store).Compute(ctx, h.tenant, h.pipeline.ID, metrics.Window{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stages[1].OpenCount)
	assert.Equal(t, 1, report.Summary.WonCount)
	assert.Equal(t, "1200", report.Summary.WonValue.String())
}

func TestMoveWithinStageKeepsProbability(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	stage := h.stages[0]
	a := h.create(t, stage, "A", 1)
	b := h.create(t, stage, "B", 1)

	_, err := h.leads.UpdateAttributes(context.Background(), h.tenant, h.actor, b.ID, transport.UpdateLeadRequest{Probability: intPtr(35)})
	require.NoError(t, err)

	moved, err := h.move(stage, b.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 35, moved.Probability)
	assert.Equal(t, b.StageChangedAt, moved.StageChangedAt)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, h.order(t, stage))
}

func TestProbabilityOverrideWins(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	lead := h.create(t, h.stages[0], "A", 1)

	moved, err := h.mover.MoveLead(context.Background(), h.tenant, h.actor, lead.ID, transport.MoveLeadRequest{
		TargetStageID: h.stages[2].ID,
		Probability:   intPtr(75),
	})
	require.NoError(t, err)
	assert.Equal(t, 75, moved.Probability)

	_, err = h.mover.MoveLead(context.Background(), h.tenant, h.actor, lead.ID, transport.MoveLeadRequest{
		TargetStageID: h.stages[1].ID,
		Probability:   intPtr(101),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRoundTripRestoresRelativeOrder(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	a, b := h.stages[0], h.stages[1]
	x := h.create(t, a, "X", 1)
	y := h.create(t, a, "Y", 1)
	z := h.create(t, a, "Z", 1)

	_, err := h.move(b, y.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{x.ID, z.ID}, h.order(t, a))

	back, err := h.move(a, y.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, back.Probability)
	assert.Equal(t, []uuid.UUID{x.ID, y.ID, z.ID}, h.order(t, a))
	assert.Empty(t, h.order(t, b))
}

func TestConcurrentMovesIntoOneStage(t *testing.T) {
	h := newHarness(t, 5*time.Second)
	source, target := h.stages[0], h.stages[1]

	const n = 24
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = h.create(t, source, "lead", 1).ID
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			if _, err := h.move(target, id, i%3); err != nil {
				failures.Add(1)
			}
		}(i, id)
	}
	wg.Wait()
	require.Zero(t, failures.Load())

	positions, err := h.store.ListStagePositions(context.Background(), h.tenant, target.ID)
	require.NoError(t, err)
	require.Len(t, positions, n)
	seen := make(map[int64]bool, n)
	for i, p := range positions {
		assert.False(t, seen[p.Position], "duplicate position %d", p.Position)
		seen[p.Position] = true
		if i > 0 {
			assert.Less(t, positions[i-1].Position, p.Position)
		}
	}
	assert.Empty(t, h.order(t, source))
}

func TestMoveToOtherPipelineIsRejected(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	lead := h.create(t, h.stages[0], "A", 1)

	other, err := catalog.New(h.store, nil, logger.Nop()).CreatePipeline(context.Background(), h.tenant, transport.CreatePipelineRequest{
		Name:   "Other",
		Stages: []transport.StageRequest{{Name: "Elsewhere"}},
	})
	require.NoError(t, err)
	stages, err := h.store.ListStages(context.Background(), h.tenant, other.ID)
	require.NoError(t, err)

	_, err = h.move(stages[0], lead.ID, 0)
	assert.True(t, apperr.Is(err, apperr.KindInvalidPipeline))

	_, err = h.mover.MoveLead(context.Background(), h.tenant, h.actor, lead.ID, transport.MoveLeadRequest{TargetStageID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = h.move(h.stages[1], uuid.New(), 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMoveTimesOutWhenStageIsHeld(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)
	lead := h.create(t, h.stages[0], "A", 1)

	release, err := h.locker.Acquire(context.Background(), h.stages[1].ID)
	require.NoError(t, err)
	defer release()

	_, err = h.move(h.stages[1], lead.ID, 0)
	require.True(t, apperr.Is(err, apperr.KindBusy))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable())

	current, err := h.store.GetLead(context.Background(), h.tenant, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, h.stages[0].ID, current.StageID)
	assert.Equal(t, lead.Position, current.Position)
}

func TestAdjacentNeighboursTriggerRenumber(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()
	target := h.stages[1]

	var renumbered atomic.Int32
	h.bus.Subscribe(events.NameStagePositionsRenumbered, events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.StagePositionsRenumbered); ok && ev.StageID == target.ID {
			renumbered.Add(1)
		}
		return nil
	}))

	neighbours := make([]uuid.UUID, 2)
	for i, pos := range []int64{1000, 1001} {
		neighbours[i] = uuid.New()
		now := time.Now().UTC()
		require.NoError(t, h.store.InsertLead(ctx, repository.Lead{
			ID: neighbours[i], TenantID: h.tenant, PipelineID: h.pipeline.ID, StageID: target.ID,
			Position: pos, Title: "n", ContactRef: "c", Status: domain.StatusOpen,
			CreatedAt: now, UpdatedAt: now, StageChangedAt: now,
		}, nil))
	}

	lead := h.create(t, h.stages[0], "X", 1)
	moved, err := h.move(target, lead.ID, 1)
	require.NoError(t, err)
	h.bus.Wait()

	assert.Equal(t, int64(1500), moved.Position)
	assert.Equal(t, []uuid.UUID{neighbours[0], lead.ID, neighbours[1]}, h.order(t, target))
	assert.Equal(t, int32(1), renumbered.Load())
}

func TestMarkLostRequiresReasonAndIsTerminal(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	ctx := context.Background()
	lead := h.create(t, h.stages[0], "A", 300)

	_, err := h.mover.MarkLost(ctx, h.tenant, h.actor, lead.ID, transport.MarkLostRequest{Reason: "   "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	lost, err := h.mover.MarkLost(ctx, h.tenant, h.actor, lead.ID, transport.MarkLostRequest{Reason: " budget "})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLost, lost.Status)
	assert.Equal(t, 0, lost.Probability)
	require.NotNil(t, lost.LostReason)
	assert.Equal(t, "budget", *lost.LostReason)

	_, err = h.mover.MarkWon(ctx, h.tenant, h.actor, lead.ID, transport.MarkWonRequest{ActualValue: decimal.NewFromInt(1)})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	_, err = h.mover.MarkLost(ctx, h.tenant, h.actor, lead.ID, transport.MarkLostRequest{Reason: "again"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestMarkWonRejectsNegativeValue(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	lead := h.create(t, h.stages[0], "A", 1)

	_, err := h.mover.MarkWon(context.Background(), h.tenant, h.actor, lead.ID, transport.MarkWonRequest{ActualValue: decimal.NewFromInt(-5)})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	current, err := h.store.GetLead(context.Background(), h.tenant, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, current.Status)
}

func TestMovePublishesEvent(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	got := make(chan events.LeadMoved, 1)
	h.bus.Subscribe(events.NameLeadMoved, events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got <- e.(events.LeadMoved)
		return nil
	}))

	lead := h.create(t, h.stages[0], "A", 1)
	_, err := h.move(h.stages[2], lead.ID, 0)
	require.NoError(t, err)
	h.bus.Wait()

	ev := <-got
	assert.Equal(t, lead.ID, ev.LeadID)
	assert.Equal(t, h.stages[0].ID, ev.FromStageID)
	assert.Equal(t, h.stages[2].ID, ev.ToStageID)
	assert.True(t, ev.CrossStage())
	assert.Equal(t, h.actor, ev.ActorID)
}
