package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/playout/internal/app"
	"github.com/Nixie-Tech-LLC/playout/internal/config"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/endpoints"
	"github.com/Nixie-Tech-LLC/playout/internal/metrics"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, a *app.App) error {
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsAddress == "" {
		r.GET("/metrics", gin.WrapH(metrics.Handler(a.Registry)))
	}

	_, err := api.OperatorGroup("/api", cfg.JWTSecret,
		endpoints.ScheduleModule(a.Builder, a.Store, a.Exporter),
		endpoints.PoolModule(a.Assigner, a.Store),
		endpoints.HoldModule(a.Store, a.Clock),
		endpoints.PolicyModule(a.Policies),
	).Mount(r)
	return err
}
