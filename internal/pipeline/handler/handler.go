// Package handler exposes the pipeline engine over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/board"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/catalog"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/ledger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/metrics"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/movement"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/transport"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/httpkit"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// SnapshotStore reads precomputed metrics snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, tenantID, pipelineID uuid.UUID) (transport.MetricsResponse, bool, error)
}

// SnapshotRequester asks the background worker to compute a snapshot.
type SnapshotRequester interface {
	RequestSnapshot(ctx context.Context, tenantID, pipelineID uuid.UUID) error
}

// Services groups the engine components the handler drives.
type Services struct {
	Catalog   *catalog.Service
	Ledger    *ledger.Service
	Moves     *movement.Coordinator
	Board     *board.Facade
	Metrics   *metrics.Aggregator
	Snapshots SnapshotStore
	Requester SnapshotRequester
}

// Handler handles HTTP requests for pipelines, stages and leads.
type Handler struct {
	svc Services
	val *validator.Validator
	log *logger.Logger
}

// New creates a new pipeline handler.
func New(svc Services, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// ListPipelines lists the tenant's pipelines in creation order.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	items, err := h.svc.Board.ListPipelines(c.Request.Context(), id.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPipelineListResponse(items))
}

// CreatePipeline creates a pipeline with its stages.
// POST /api/v1/pipelines
func (h *Handler) CreatePipeline(c *gin.Context) {
	var req transport.CreatePipelineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	p, err := h.svc.Catalog.CreatePipeline(c.Request.Context(), id.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPipelineResponse(p))
}

// CreateFromTemplate instantiates a named pipeline template.
// POST /api/v1/pipelines/templates/:name
func (h *Handler) CreateFromTemplate(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	p, err := h.svc.Catalog.CreateFromTemplate(c.Request.Context(), id.TenantID(), c.Param("name"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToPipelineResponse(p))
}

// ListTemplates lists the template names pipelines can be created from.
// GET /api/v1/pipelines/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	httpkit.OK(c, gin.H{"items": h.svc.Catalog.TemplateNames()})
}

// DefaultPipeline returns the board of the tenant's first pipeline.
// GET /api/v1/pipelines/default
func (h *Handler) DefaultPipeline(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	filter, ok := h.boardFilter(c)
	if !ok {
		return
	}
	p, err := h.svc.Board.DefaultPipeline(c.Request.Context(), id.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	view, err := h.svc.Board.Board(c.Request.Context(), id.TenantID(), p.ID, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view.Response())
}

// GetBoard returns a pipeline with its stages and their ordered leads.
// GET /api/v1/pipelines/:id
func (h *Handler) GetBoard(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	filter, ok := h.boardFilter(c)
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	view, err := h.svc.Board.Board(c.Request.Context(), id.TenantID(), pipelineID, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view.Response())
}

// UpdatePipeline updates pipeline attributes.
// PUT /api/v1/pipelines/:id
func (h *Handler) UpdatePipeline(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	var req transport.UpdatePipelineRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	p, err := h.svc.Catalog.UpdatePipeline(c.Request.Context(), id.TenantID(), pipelineID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPipelineResponse(p))
}

// DeletePipeline removes an empty pipeline.
// DELETE /api/v1/pipelines/:id
func (h *Handler) DeletePipeline(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.Catalog.DeletePipeline(c.Request.Context(), id.TenantID(), pipelineID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListStages lists a pipeline's stages by ordinal.
// GET /api/v1/pipelines/:id/stages
func (h *Handler) ListStages(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	stages, err := h.svc.Catalog.ListStages(c.Request.Context(), id.TenantID(), pipelineID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageListResponse(stages))
}

// AddStage appends a stage to a pipeline.
// POST /api/v1/pipelines/:id/stages
func (h *Handler) AddStage(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	var req transport.StageRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	stage, err := h.svc.Catalog.AddStage(c.Request.Context(), id.TenantID(), pipelineID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToStageResponse(stage))
}

// ReorderStages rewrites stage ordinals from an ordered id list.
// PUT /api/v1/pipelines/:id/stages/order
func (h *Handler) ReorderStages(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	var req transport.ReorderStagesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	stages, err := h.svc.Catalog.ReorderStages(c.Request.Context(), id.TenantID(), pipelineID, req.StageIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageListResponse(stages))
}

// GetStage returns a single stage.
// GET /api/v1/stages/:id
func (h *Handler) GetStage(c *gin.Context) {
	stageID, ok := parseID(c, "id", "invalid stage id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	stage, err := h.svc.Catalog.GetStage(c.Request.Context(), id.TenantID(), stageID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageResponse(stage))
}

// UpdateStage updates stage attributes.
// PUT /api/v1/stages/:id
func (h *Handler) UpdateStage(c *gin.Context) {
	stageID, ok := parseID(c, "id", "invalid stage id")
	if !ok {
		return
	}
	var req transport.UpdateStageRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	stage, err := h.svc.Catalog.UpdateStage(c.Request.Context(), id.TenantID(), stageID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageResponse(stage))
}

// DeleteStage removes an empty stage.
// DELETE /api/v1/stages/:id
func (h *Handler) DeleteStage(c *gin.Context) {
	stageID, ok := parseID(c, "id", "invalid stage id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.Catalog.DeleteStage(c.Request.Context(), id.TenantID(), stageID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListStageLeads lists the leads in a stage by position.
// GET /api/v1/stages/:id/leads
func (h *Handler) ListStageLeads(c *gin.Context) {
	stageID, ok := parseID(c, "id", "invalid stage id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	leads, err := h.svc.Ledger.ListByStage(c.Request.Context(), id.TenantID(), stageID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadListResponse(leads))
}

// GetMetrics computes pipeline metrics over an optional created_at window.
// GET /api/v1/pipelines/:id/metrics?from=&to=
func (h *Handler) GetMetrics(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	var q transport.MetricsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if !h.validate(c, q) {
		return
	}
	window, err := parseWindow(q)
	if httpkit.HandleError(c, err) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	report, err := h.svc.Metrics.Compute(c.Request.Context(), id.TenantID(), pipelineID, window)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report.Response())
}

// GetMetricsSnapshot serves the last precomputed metrics. On a miss it asks
// the worker for a fresh snapshot and answers 404.
// GET /api/v1/pipelines/:id/metrics/snapshot
func (h *Handler) GetMetricsSnapshot(c *gin.Context) {
	pipelineID, ok := parseID(c, "id", "invalid pipeline id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	if h.svc.Snapshots == nil {
		httpkit.HandleError(c, apperr.NotFound("metrics snapshots are not enabled"))
		return
	}

	ctx := c.Request.Context()
	snapshot, found, err := h.svc.Snapshots.Get(ctx, id.TenantID(), pipelineID)
	if httpkit.HandleError(c, err) {
		return
	}
	if found {
		httpkit.OK(c, snapshot)
		return
	}
	if h.svc.Requester != nil {
		if err := h.svc.Requester.RequestSnapshot(ctx, id.TenantID(), pipelineID); err != nil {
			h.log.WithContext(ctx).Warn("failed to request metrics snapshot", "pipelineId", pipelineID, "error", err)
		}
	}
	httpkit.HandleError(c, apperr.NotFound("metrics snapshot not available yet"))
}

// CreateLead creates a lead at the tail of a stage.
// POST /api/v1/leads
func (h *Handler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Ledger.Create(c.Request.Context(), id.TenantID(), id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToLeadResponse(lead))
}

// ListLeads searches the tenant's leads with filters and pagination.
// GET /api/v1/leads?pipelineId=&stageId=&status=&priority=&assignedTo=&search=&page=&limit=
func (h *Handler) ListLeads(c *gin.Context) {
	var q transport.LeadSearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if !h.validate(c, q) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	page, err := h.svc.Ledger.Search(c.Request.Context(), id.TenantID(), q)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, page.Response())
}

// GetLead returns a single lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Ledger.Get(c.Request.Context(), id.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// UpdateLead applies a partial attribute update.
// PATCH /api/v1/leads/:id
func (h *Handler) UpdateLead(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	var req transport.UpdateLeadRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Ledger.UpdateAttributes(c.Request.Context(), id.TenantID(), id.UserID(), leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// DeleteLead removes a lead.
// DELETE /api/v1/leads/:id
func (h *Handler) DeleteLead(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.Ledger.Delete(c.Request.Context(), id.TenantID(), id.UserID(), leadID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ListActivities returns the lead's activity log, newest first.
// GET /api/v1/leads/:id/activities
func (h *Handler) ListActivities(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	items, err := h.svc.Ledger.ListActivities(c.Request.Context(), id.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActivityListResponse(items))
}

// AddActivity logs a contact entry on a lead.
// POST /api/v1/leads/:id/activities
func (h *Handler) AddActivity(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	var req transport.AddActivityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	activity, err := h.svc.Ledger.AddActivity(c.Request.Context(), id.TenantID(), id.UserID(), leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToActivityResponse(activity))
}

// MoveLead moves a lead to an index in a stage.
// POST /api/v1/leads/:id/move
func (h *Handler) MoveLead(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	var req transport.MoveLeadRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Moves.MoveLead(c.Request.Context(), id.TenantID(), id.UserID(), leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// MarkWon closes an open lead as won.
// POST /api/v1/leads/:id/won
func (h *Handler) MarkWon(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	var req transport.MarkWonRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Moves.MarkWon(c.Request.Context(), id.TenantID(), id.UserID(), leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

// MarkLost closes an open lead as lost.
// POST /api/v1/leads/:id/lost
func (h *Handler) MarkLost(c *gin.Context) {
	leadID, ok := parseID(c, "id", "invalid lead id")
	if !ok {
		return
	}
	var req transport.MarkLostRequest
	if !h.bindJSON(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	lead, err := h.svc.Moves.MarkLost(c.Request.Context(), id.TenantID(), id.UserID(), leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.Messages(err)))
		return false
	}
	return true
}

func (h *Handler) boardFilter(c *gin.Context) (board.Filter, bool) {
	var q transport.BoardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return board.Filter{}, false
	}
	if !h.validate(c, q) {
		return board.Filter{}, false
	}
	var filter board.Filter
	if q.Status != "" {
		status := domain.LeadStatus(q.Status)
		filter.Status = &status
	}
	return filter, true
}

func parseID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(message))
		return uuid.Nil, false
	}
	return id, true
}

// parseWindow accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseWindow(q transport.MetricsQuery) (metrics.Window, error) {
	var w metrics.Window
	from, err := parseBound(q.From, "from")
	if err != nil {
		return w, err
	}
	to, err := parseBound(q.To, "to")
	if err != nil {
		return w, err
	}
	w.From, w.To = from, to
	return w, nil
}

func parseBound(raw, name string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Validation(name + " must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}
