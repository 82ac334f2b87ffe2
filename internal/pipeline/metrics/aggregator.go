// Package metrics computes per-stage and funnel figures for a pipeline from
// current lead state. Nothing here is cached; every call reads fresh data.
package metrics

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the read slice the aggregator needs.
type Repository interface {
	repository.PipelineReader
	repository.StageReader
	repository.LeadReader
}

// Window restricts leads by created_at to [From, To). Nil bounds are open.
type Window struct {
	From *time.Time
	To   *time.Time
}

type StageMetrics struct {
	Stage              repository.Stage
	OpenCount          int
	OpenValue          decimal.Decimal
	AverageProbability float64
	WeightedValue      decimal.Decimal
}

type FunnelStep struct {
	Stage      repository.Stage
	Count      int
	Reached    int
	Conversion float64
}

type Funnel struct {
	Steps []FunnelStep
	Won   int
	Lost  int
}

type Summary struct {
	TotalLeads    int
	OpenValue     decimal.Decimal
	WonCount      int
	WonValue      decimal.Decimal
	LostCount     int
	LostValue     decimal.Decimal
	WinRate       float64
	AverageDeal   decimal.Decimal
	WeightedValue decimal.Decimal
}

// Report is the full metrics view of one pipeline.
type Report struct {
	PipelineID uuid.UUID
	Window     Window
	Stages     []StageMetrics
	Funnel     Funnel
	Summary    Summary
	ComputedAt time.Time
}

// Aggregator reads pipelines and computes reports.
type Aggregator struct {
	repo Repository
}

func New(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Compute builds the report for a pipeline over the window.
func (a *Aggregator) Compute(ctx context.Context, tenantID, pipelineID uuid.UUID, window Window) (Report, error) {
	if window.From != nil && window.To != nil && !window.From.Before(*window.To) {
		return Report{}, apperr.Validation("from must be before to")
	}
	if _, err := a.repo.GetPipeline(ctx, tenantID, pipelineID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Report{}, apperr.NotFound("pipeline not found")
		}
		return Report{}, err
	}

	stages, err := a.repo.ListStages(ctx, tenantID, pipelineID)
	if err != nil {
		return Report{}, err
	}
	leads, err := a.repo.ListLeadsByPipeline(ctx, tenantID, pipelineID, repository.LeadFilter{
		CreatedFrom: window.From,
		CreatedTo:   window.To,
	})
	if err != nil {
		return Report{}, err
	}

	report := Build(stages, leads)
	report.PipelineID = pipelineID
	report.Window = window
	report.ComputedAt = time.Now().UTC()
	return report, nil
}

// Build computes the figures from stages ordered by ordinal and the leads to count.
func Build(stages []repository.Stage, leads []repository.Lead) Report {
	n := len(stages)
	index := make(map[uuid.UUID]int, n)
	for i, s := range stages {
		index[s.ID] = i
	}

	type acc struct {
		open      int
		openValue decimal.Decimal
		probSum   int
		weighted  decimal.Decimal
		inStage   int
	}
	per := make([]acc, n)
	// depthCount[d] counts leads whose furthest stage index is d; d == n means WON.
	depthCount := make([]int, n+1)

	var sum Summary
	for _, l := range leads {
		i, ok := index[l.StageID]
		if !ok {
			continue
		}
		sum.TotalLeads++
		per[i].inStage++

		switch l.Status {
		case domain.StatusOpen:
			w := domain.WeightedValue(l.EstimatedValue, l.Probability)
			per[i].open++
			per[i].openValue = per[i].openValue.Add(l.EstimatedValue)
			per[i].probSum += l.Probability
			per[i].weighted = per[i].weighted.Add(w)
			sum.OpenValue = sum.OpenValue.Add(l.EstimatedValue)
			sum.WeightedValue = sum.WeightedValue.Add(w)
			depthCount[i]++
		case domain.StatusWon:
			sum.WonCount++
			if l.ActualValue != nil {
				sum.WonValue = sum.WonValue.Add(*l.ActualValue)
			} else {
				sum.WonValue = sum.WonValue.Add(l.EstimatedValue)
			}
			depthCount[n]++
		case domain.StatusLost:
			sum.LostCount++
			sum.LostValue = sum.LostValue.Add(l.EstimatedValue)
			depthCount[i]++
		}
	}

	report := Report{
		Stages: make([]StageMetrics, n),
		Funnel: Funnel{Steps: make([]FunnelStep, n), Won: sum.WonCount, Lost: sum.LostCount},
	}
	for i, s := range stages {
		sm := StageMetrics{
			Stage:         s,
			OpenCount:     per[i].open,
			OpenValue:     per[i].openValue,
			WeightedValue: per[i].weighted,
		}
		if per[i].open > 0 {
			sm.AverageProbability = round2(float64(per[i].probSum) / float64(per[i].open))
		}
		report.Stages[i] = sm
	}

	// reached[i] = leads with depth >= i, for i in 0..n.
	reached := make([]int, n+1)
	running := 0
	for d := n; d >= 0; d-- {
		running += depthCount[d]
		reached[d] = running
	}
	for i, s := range stages {
		step := FunnelStep{Stage: s, Count: per[i].inStage, Reached: reached[i]}
		if reached[i] > 0 {
			step.Conversion = round2(float64(reached[i+1]) / float64(reached[i]))
		}
		report.Funnel.Steps[i] = step
	}

	if closed := sum.WonCount + sum.LostCount; closed > 0 {
		sum.WinRate = round2(float64(sum.WonCount) / float64(closed))
	}
	if sum.WonCount > 0 {
		sum.AverageDeal = sum.WonValue.Div(decimal.NewFromInt(int64(sum.WonCount))).Round(2)
	}
	report.Summary = sum
	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Response renders the report for the API and the snapshot cache.
func (r Report) Response() transport.MetricsResponse {
	resp := transport.MetricsResponse{
		PipelineID: r.PipelineID,
		From:       r.Window.From,
		To:         r.Window.To,
		Stages:     make([]transport.StageMetricsResponse, len(r.Stages)),
		Funnel: transport.FunnelResponse{
			Steps: make([]transport.FunnelStepResponse, len(r.Funnel.Steps)),
			Won:   r.Funnel.Won,
			Lost:  r.Funnel.Lost,
		},
		Summary: transport.SummaryResponse{
			TotalLeads:    r.Summary.TotalLeads,
			OpenValue:     r.Summary.OpenValue.StringFixed(2),
			WonCount:      r.Summary.WonCount,
			WonValue:      r.Summary.WonValue.StringFixed(2),
			LostCount:     r.Summary.LostCount,
			LostValue:     r.Summary.LostValue.StringFixed(2),
			WinRate:       r.Summary.WinRate,
			AverageDeal:   r.Summary.AverageDeal.StringFixed(2),
			WeightedValue: r.Summary.WeightedValue.StringFixed(2),
		},
		ComputedAt: r.ComputedAt,
	}
	for i, s := range r.Stages {
		resp.Stages[i] = transport.StageMetricsResponse{
			StageID:            s.Stage.ID,
			Name:               s.Stage.Name,
			OpenCount:          s.OpenCount,
			OpenValue:          s.OpenValue.StringFixed(2),
			AverageProbability: s.AverageProbability,
			WeightedValue:      s.WeightedValue.StringFixed(2),
		}
	}
	for i, st := range r.Funnel.Steps {
		resp.Funnel.Steps[i] = transport.FunnelStepResponse{
			StageID:    st.Stage.ID,
			Name:       st.Stage.Name,
			Count:      st.Count,
			Reached:    st.Reached,
			Conversion: st.Conversion,
		}
	}
	return resp
}
