package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/cube-segmenter/internal/middleware"
)

// NewRouter wires the service routes
func NewRouter(logger *zap.Logger, segment *SegmentHandler, health *HealthHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	r.GET("/health", health.Health)
	r.GET("/version", health.Version)
	r.POST("/segment", segment.Segment)
	return r
}
