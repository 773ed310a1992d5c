package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/packets"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
)

func PolicyModule(reloader *policy.Reloader) api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/policies/reload", func(ctx *gin.Context) (any, *api.APIError) {
			if err := reloader.Reload(ctx.Request.Context()); err != nil {
				return nil, &api.APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()}
			}
			return packets.MessageResponse{Message: "reloaded"}, nil
		})
	})
}
