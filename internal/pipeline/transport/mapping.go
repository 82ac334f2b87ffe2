package transport

import (
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
)

func ToPipelineResponse(p repository.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Color:       p.Color,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func ToPipelineListResponse(items []repository.Pipeline) PipelineListResponse {
	out := PipelineListResponse{Items: make([]PipelineResponse, len(items))}
	for i, p := range items {
		out.Items[i] = ToPipelineResponse(p)
	}
	return out
}

func ToStageResponse(s repository.Stage) StageResponse {
	return StageResponse{
		ID:                 s.ID,
		PipelineID:         s.PipelineID,
		Name:               s.Name,
		Description:        s.Description,
		Color:              s.Color,
		DefaultProbability: s.DefaultProbability,
		Ordinal:            s.Ordinal,
	}
}

func ToStageListResponse(items []repository.Stage) StageListResponse {
	out := StageListResponse{Items: make([]StageResponse, len(items))}
	for i, s := range items {
		out.Items[i] = ToStageResponse(s)
	}
	return out
}

func ToLeadResponse(l repository.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                l.ID,
		PipelineID:        l.PipelineID,
		StageID:           l.StageID,
		Position:          l.Position,
		Title:             l.Title,
		Description:       l.Description,
		ContactRef:        l.ContactRef,
		EstimatedValue:    l.EstimatedValue.StringFixed(2),
		Currency:          l.Currency,
		Probability:       l.Probability,
		WeightedValue:     domain.WeightedValue(l.EstimatedValue, l.Probability).StringFixed(2),
		Source:            string(l.Source),
		Priority:          string(l.Priority),
		Status:            string(l.Status),
		LostReason:        l.LostReason,
		Tags:              l.Tags,
		AssigneeID:        l.AssignedTo,
		ExpectedCloseDate: l.ExpectedCloseDate,
		LastContactAt:     l.LastContactAt,
		StageChangedAt:    l.StageChangedAt,
		ClosedAt:          l.ClosedAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if l.ActualValue != nil {
		v := l.ActualValue.StringFixed(2)
		resp.ActualValue = &v
	}
	return resp
}

func ToLeadListResponse(items []repository.Lead) LeadListResponse {
	out := LeadListResponse{Items: make([]LeadResponse, len(items))}
	for i, l := range items {
		out.Items[i] = ToLeadResponse(l)
	}
	return out
}

// ToLeadPageResponse maps one page of a lead search.
func ToLeadPageResponse(items []repository.Lead, page, limit, total int) LeadPageResponse {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return LeadPageResponse{
		Items:      ToLeadListResponse(items).Items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func ToActivityResponse(a repository.Activity) ActivityResponse {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return ActivityResponse{
		ID:        a.ID,
		Type:      string(a.Type),
		Title:     a.Title,
		Metadata:  metadata,
		ActorID:   a.ActorID,
		CreatedAt: a.CreatedAt,
	}
}

func ToActivityListResponse(items []repository.Activity) ActivityListResponse {
	out := ActivityListResponse{Items: make([]ActivityResponse, len(items))}
	for i, a := range items {
		out.Items[i] = ToActivityResponse(a)
	}
	return out
}
