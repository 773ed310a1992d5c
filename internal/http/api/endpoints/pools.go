package endpoints

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/packets"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/rotation"
)

type PoolController struct {
	assigner *rotation.Assigner
	store    db.Store
}

func PoolModule(assigner *rotation.Assigner, store db.Store) api.Module {
	ctl := &PoolController{assigner: assigner, store: store}
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/pools/:id/assign", ctl.assignPool)
		c.GET("/pools/:id/assignments", ctl.listAssignments)
	})
}

// ParseDay accepts a calendar date (2006-01-02) or an RFC 3339 instant.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func poolID(ctx *gin.Context) (int, *api.APIError) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		return 0, badRequest("invalid pool id")
	}
	return id, nil
}

func (p *PoolController) assignPool(ctx *gin.Context) (any, *api.APIError) {
	id, apiErr := poolID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.AssignPoolRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}
	start, err := ParseDay(request.StartDate)
	if err != nil {
		return nil, badRequest("invalid start_date")
	}

	days, err := p.assigner.Assign(ctx.Request.Context(), id, start, request.NumDays, request.ItemsPerDay)
	if err != nil {
		return nil, toAPIError(err, "pool")
	}
	return days, nil
}

func (p *PoolController) listAssignments(ctx *gin.Context) (any, *api.APIError) {
	id, apiErr := poolID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	from, err := ParseDay(ctx.Query("from"))
	if err != nil {
		return nil, badRequest("invalid from")
	}
	to, err := ParseDay(ctx.Query("to"))
	if err != nil || !to.After(from) {
		return nil, badRequest("invalid to")
	}

	if _, err := p.store.GetPool(ctx.Request.Context(), id); err != nil {
		return nil, toAPIError(err, "pool")
	}
	days, err := p.store.ListDayAssignments(ctx.Request.Context(), id, from, to)
	if err != nil {
		return nil, toAPIError(err, "pool")
	}
	if days == nil {
		days = []model.DayAssignment{}
	}
	return days, nil
}
