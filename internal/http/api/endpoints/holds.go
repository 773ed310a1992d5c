package endpoints

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/playout/internal/clock"
	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/packets"
)

type HoldController struct {
	store db.Store
	clock clock.Clock
}

func HoldModule(store db.Store, clk clock.Clock) api.Module {
	ctl := &HoldController{store: store, clock: clk}
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/holds", ctl.placeHold)
		c.DELETE("/holds/:id", ctl.releaseHold)
	})
}

func (h *HoldController) placeHold(ctx *gin.Context) (any, *api.APIError) {
	var request packets.PlaceHoldRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}
	if request.Until != nil && !request.Until.After(h.clock.Now()) {
		return nil, badRequest("until must be in the future")
	}

	hold, err := h.store.PlaceHold(ctx.Request.Context(), request.AssetID, request.Reason, request.Until)
	if err != nil {
		return nil, toAPIError(err, "asset")
	}
	return hold, nil
}

func (h *HoldController) releaseHold(ctx *gin.Context) (any, *api.APIError) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return nil, badRequest("invalid hold id")
	}
	if err := h.store.ReleaseHold(ctx.Request.Context(), id, h.clock.Now()); err != nil {
		return nil, toAPIError(err, "hold")
	}
	return packets.MessageResponse{Message: "released"}, nil
}
