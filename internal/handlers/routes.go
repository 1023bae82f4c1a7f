package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes groups every handler served by the API.
type Routes struct {
	Health    *HealthHandler
	Imports   *ImportHandler
	Addresses *AddressHandler
	Parcels   *ParcelHandler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Register mounts the routes on router.
func (r Routes) Register(router *gin.Engine) {
	router.GET("/health", r.Health.Health)
	router.GET("/health/ready", r.Health.Ready)
	if r.Metrics != nil {
		router.GET("/metrics", gin.WrapH(r.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", r.Health.Info)

		imports := v1.Group("/imports")
		imports.POST("", r.Imports.Create)
		imports.GET("", r.Imports.List)
		imports.GET("/:id", r.Imports.Get)
		imports.GET("/:id/records", r.Imports.Records)
		imports.GET("/:id/errors", r.Imports.Errors)
		imports.POST("/:id/abort", r.Imports.Abort)

		addresses := v1.Group("/addresses")
		addresses.POST("/match", r.Addresses.Match)
		addresses.POST("/manual", r.Addresses.ManualMatch)
		addresses.GET("/matches", r.Addresses.Matches)

		v1.GET("/parcels/:parcelNumber", r.Parcels.Get)
	}
}
