package handler

import (
	apphttp "github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/http"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/notification/sse"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Module mounts the pipeline routes and the live board stream.
type Module struct {
	handler *Handler
	stream  *sse.Service
}

// NewModule creates the pipeline HTTP module. stream may be nil.
func NewModule(h *Handler, stream *sse.Service) *Module {
	return &Module{handler: h, stream: stream}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	h := m.handler

	pipelines := ctx.Protected.Group("/pipelines")
	pipelines.GET("", h.ListPipelines)
	pipelines.POST("", h.CreatePipeline)
	pipelines.GET("/templates", h.ListTemplates)
	pipelines.POST("/templates/:name", h.CreateFromTemplate)
	pipelines.GET("/default", h.DefaultPipeline)
	pipelines.GET("/:id", h.GetBoard)
	pipelines.PUT("/:id", h.UpdatePipeline)
	pipelines.DELETE("/:id", h.DeletePipeline)
	pipelines.GET("/:id/stages", h.ListStages)
	pipelines.POST("/:id/stages", h.AddStage)
	pipelines.PUT("/:id/stages/order", h.ReorderStages)
	pipelines.GET("/:id/metrics", h.GetMetrics)
	pipelines.GET("/:id/metrics/snapshot", h.GetMetricsSnapshot)

	stages := ctx.Protected.Group("/stages")
	stages.GET("/:id", h.GetStage)
	stages.PUT("/:id", h.UpdateStage)
	stages.DELETE("/:id", h.DeleteStage)
	stages.GET("/:id/leads", h.ListStageLeads)

	leads := ctx.Protected.Group("/leads")
	leads.GET("", h.ListLeads)
	leads.POST("", h.CreateLead)
	leads.GET("/:id", h.GetLead)
	leads.PATCH("/:id", h.UpdateLead)
	leads.DELETE("/:id", h.DeleteLead)
	leads.GET("/:id/activities", h.ListActivities)
	leads.POST("/:id/activities", h.AddActivity)
	leads.POST("/:id/move", h.MoveLead)
	leads.POST("/:id/won", h.MarkWon)
	leads.POST("/:id/lost", h.MarkLost)

	if m.stream != nil {
		ctx.Protected.GET("/events/stream", m.stream.Handler(userID, tenantID))
	}
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id := httpkit.GetIdentity(c)
	return id.UserID(), id.IsAuthenticated()
}

func tenantID(c *gin.Context) (uuid.UUID, bool) {
	id := httpkit.GetIdentity(c)
	return id.TenantID(), id.TenantID() != uuid.Nil
}

var _ apphttp.Module = (*Module)(nil)
