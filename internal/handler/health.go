package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BuildInfo is reported by /version
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Checker reports whether a dependency is reachable
type Checker interface {
	Health(ctx context.Context) error
}

// HealthHandler serves /health and /version
type HealthHandler struct {
	info   BuildInfo
	checks map[string]Checker
}

func NewHealthHandler(info BuildInfo, checks map[string]Checker) *HealthHandler {
	return &HealthHandler{info: info, checks: checks}
}

// Health answers 200 when every registered dependency is healthy, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	deps := gin.H{}
	status := http.StatusOK
	for name, chk := range h.checks {
		if err := chk.Health(c.Request.Context()); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"version":      h.info.Version,
		"dependencies": deps,
	})
}

func (h *HealthHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
