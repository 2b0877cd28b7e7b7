package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemMetrics is a host load snapshot reported by the health endpoint.
type SystemMetrics struct {
	NumCPU        int     `json:"numCpu"`
	MemoryPercent float64 `json:"memoryPercent,omitempty"`
	MemoryUsedMB  float64 `json:"memoryUsedMb,omitempty"`
	LoadAverage   float64 `json:"loadAverage,omitempty"`
}

// Health handles GET /api/v1/encoder/health
//
// Response:
//
//	{
//	  "status": "healthy",
//	  "activeJobs": 1,
//	  "jobs": {"running": 1, "completed": 3},
//	  "processes": [...],
//	  "system": {"numCpu": 8, "memoryPercent": 41.2, "loadAverage": 0.7}
//	}
func (h *APIHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := gin.H{
		"status":     "healthy",
		"activeJobs": h.jobs.Active(),
		"jobs":       h.jobs.Stats(),
		"system":     gatherSystemMetrics(ctx),
	}
	if h.processes != nil {
		resp["processes"] = h.processes.Stats(ctx)
	}

	c.JSON(http.StatusOK, resp)
}

// gatherSystemMetrics collects host metrics; fields it cannot read stay zero.
func gatherSystemMetrics(ctx context.Context) SystemMetrics {
	metrics := SystemMetrics{NumCPU: runtime.NumCPU()}

	if memStats, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		metrics.MemoryPercent = memStats.UsedPercent
		metrics.MemoryUsedMB = float64(memStats.Used) / (1024 * 1024)
	}
	if loadStats, err := load.AvgWithContext(ctx); err == nil {
		metrics.LoadAverage = loadStats.Load1
	}

	return metrics
}
