package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stagesOf(names ...string) []repository.Stage {
	out := make([]repository.Stage, len(names))
	for i, name := range names {
		out[i] = repository.Stage{ID: uuid.New(), Name: name, Ordinal: i + 1}
	}
	return out
}

func leadIn(stage repository.Stage, status domain.LeadStatus, value int64, probability int) repository.Lead {
	return repository.Lead{
		ID:             uuid.New(),
		StageID:        stage.ID,
		Status:         status,
		EstimatedValue: decimal.NewFromInt(value),
		Probability:    probability,
	}
}

func TestBuildPerStageFiguresCountOpenLeadsOnly(t *testing.T) {
	stages := stagesOf("Leads", "Negotiation", "Closed")
	won := leadIn(stages[1], domain.StatusWon, 1000, 100)
	actual := decimal.NewFromInt(1200)
	won.ActualValue = &actual

	report := Build(stages, []repository.Lead{
		leadIn(stages[1], domain.StatusOpen, 500, 40),
		won,
	})

	neg := report.Stages[1]
	assert.Equal(t, 1, neg.OpenCount)
	assert.Equal(t, "500", neg.OpenValue.String())
	assert.Equal(t, 40.0, neg.AverageProbability)
	assert.Equal(t, "200", neg.WeightedValue.String())

	assert.Equal(t, 1, report.Summary.WonCount)
	assert.Equal(t, "1200", report.Summary.WonValue.String())
	assert.Equal(t, 2, report.Summary.TotalLeads)
	assert.Equal(t, 2, report.Funnel.Steps[1].Count)
}

func TestBuildFunnelConversion(t *testing.T) {
	stages := stagesOf("A", "B", "C")
	leads := []repository.Lead{
		leadIn(stages[0], domain.StatusOpen, 10, 10),
		leadIn(stages[0], domain.StatusLost, 10, 0),
		leadIn(stages[1], domain.StatusOpen, 10, 50),
		leadIn(stages[2], domain.StatusWon, 10, 100),
	}

	report := Build(stages, leads)
	steps := report.Funnel.Steps

	// depths: 0, 0, 1, 3 (won) -> reached = [4, 2, 1], won = 1
	assert.Equal(t, 4, steps[0].Reached)
	assert.Equal(t, 2, steps[1].Reached)
	assert.Equal(t, 1, steps[2].Reached)
	assert.Equal(t, 0.5, steps[0].Conversion)
	assert.Equal(t, 0.5, steps[1].Conversion)
	assert.Equal(t, 1.0, steps[2].Conversion)
	assert.Equal(t, 1, report.Funnel.Won)
	assert.Equal(t, 1, report.Funnel.Lost)
	assert.Equal(t, 0.5, report.Summary.WinRate)
}

func TestBuildEmptyPipelineHasZeroConversion(t *testing.T) {
	report := Build(stagesOf("A", "B"), nil)
	for _, step := range report.Funnel.Steps {
		assert.Equal(t, 0, step.Reached)
		assert.Equal(t, 0.0, step.Conversion)
	}
	assert.Equal(t, 0.0, report.Summary.WinRate)
	assert.True(t, report.Summary.AverageDeal.IsZero())
}

func TestBuildAverageDeal(t *testing.T) {
	stages := stagesOf("A")
	a := leadIn(stages[0], domain.StatusWon, 0, 100)
	b := leadIn(stages[0], domain.StatusWon, 0, 100)
	va, vb := decimal.NewFromInt(100), decimal.NewFromInt(201)
	a.ActualValue, b.ActualValue = &va, &vb

	report := Build(stages, []repository.Lead{a, b})
	assert.Equal(t, "150.5", report.Summary.AverageDeal.String())
	assert.Equal(t, "150.50", report.Response().Summary.AverageDeal)
}

func TestComputeAppliesWindowAndTenant(t *testing.T) {
	store := repository.NewMemory()
	ctx := context.Background()
	tenant := uuid.New()
	p := repository.Pipeline{ID: uuid.New(), TenantID: tenant, Name: "P", CreatedAt: time.Now()}
	stage := repository.Stage{ID: uuid.New(), PipelineID: p.ID, TenantID: tenant, Name: "A", Ordinal: 1}
	require.NoError(t, store.CreatePipeline(ctx, p, []repository.Stage{stage}))

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, created := range []time.Time{old, recent} {
		require.NoError(t, store.InsertLead(ctx, repository.Lead{
			ID: uuid.New(), TenantID: tenant, PipelineID: p.ID, StageID: stage.ID,
			Position: int64(i+1) * 1000, Status: domain.StatusOpen,
			EstimatedValue: decimal.NewFromInt(100), CreatedAt: created,
		}, nil))
	}

	agg := New(store)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	report, err := agg.Compute(ctx, tenant, p.ID, Window{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stages[0].OpenCount)

	_, err = agg.Compute(ctx, uuid.New(), p.ID, Window{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = agg.Compute(ctx, tenant, p.ID, Window{From: &recent, To: &old})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
