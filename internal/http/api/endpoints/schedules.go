package endpoints

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/packets"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
	"github.com/Nixie-Tech-LLC/playout/internal/storage"
)

type ScheduleController struct {
	builder  *scheduler.Builder
	store    db.Store
	exporter *storage.Exporter
}

func NewScheduleController(builder *scheduler.Builder, store db.Store, exporter *storage.Exporter) *ScheduleController {
	return &ScheduleController{builder: builder, store: store, exporter: exporter}
}

func ScheduleModule(builder *scheduler.Builder, store db.Store, exporter *storage.Exporter) api.Module {
	ctl := NewScheduleController(builder, store, exporter)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/schedules/build", ctl.buildSchedule)
		c.GET("/schedules/:id", ctl.getSchedule)
		c.POST("/schedules/:id/reflow", ctl.reflowSchedule)
		c.POST("/schedules/:id/export", ctl.exportSchedule)
	})
}

// buildSchedule runs a build synchronously. Failed builds are still 200: the
// outcome is in the result's status and diagnostics.
func (s *ScheduleController) buildSchedule(ctx *gin.Context) (any, *api.APIError) {
	var request packets.BuildScheduleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}

	req := scheduler.BuildRequest{
		Channel: request.Channel,
		StartAt: request.Start,
		Target:  time.Duration(request.TargetSeconds) * time.Second,
	}
	if request.Pattern != "" {
		pattern, err := scheduler.ParsePattern(request.Pattern)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		req.Pattern = pattern
	}

	res, err := s.builder.BuildSchedule(ctx.Request.Context(), req)
	if err != nil {
		return nil, toAPIError(err, "schedule")
	}
	return res, nil
}

func scheduleID(ctx *gin.Context) (uuid.UUID, *api.APIError) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, badRequest("invalid schedule id")
	}
	return id, nil
}

func (s *ScheduleController) getSchedule(ctx *gin.Context) (any, *api.APIError) {
	id, apiErr := scheduleID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	sc, err := s.store.GetSchedule(ctx.Request.Context(), id)
	if err != nil {
		return nil, toAPIError(err, "schedule")
	}
	return sc, nil
}

func (s *ScheduleController) reflowSchedule(ctx *gin.Context) (any, *api.APIError) {
	id, apiErr := scheduleID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	sc, err := s.builder.Reflow(ctx.Request.Context(), id)
	if err != nil {
		return nil, toAPIError(err, "schedule")
	}
	return sc, nil
}

func (s *ScheduleController) exportSchedule(ctx *gin.Context) (any, *api.APIError) {
	id, apiErr := scheduleID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	location, err := s.exporter.Export(ctx.Request.Context(), id)
	if err != nil {
		return nil, toAPIError(err, "schedule")
	}
	return packets.ExportResponse{ScheduleID: id, Location: location}, nil
}
