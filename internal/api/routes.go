package api

import (
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/apexdns/internal/api/docs" // swagger docs
	"github.com/jroosing/apexdns/internal/api/handlers"
	"github.com/jroosing/apexdns/internal/api/middleware"
	"github.com/jroosing/apexdns/internal/config"
)

// RegisterRoutes mounts the API, the swagger UI and the optional
// static status page.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Optional static status page.
	if cfg != nil && cfg.API.StaticDir != "" {
		r.Use(static.Serve("/", static.LocalFile(cfg.API.StaticDir, false)))
	}

	api := r.Group("/api/v1")

	api.GET("/health", h.Health)

	protected := api.Group("")
	if cfg != nil && cfg.API.APIKey != "" {
		protected.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	protected.GET("/stats", h.Stats)
	protected.GET("/zone", h.GetZone)
	protected.POST("/zone/reload", h.ReloadZone)
	protected.GET("/querylog", h.QueryLog)
}
