package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all encoder module API routes.
//
// API Structure:
//
//	/api/v1/encoder
//	├── /jobs                     - Submit and list jobs
//	├── /jobs/:jobId              - Job snapshot
//	├── /jobs/:jobId/stop         - Request a stop
//	├── /jobs/:jobId/control      - Control channel (websocket)
//	├── /profiles                 - Registered encoding profiles
//	└── /health                   - Liveness and load
func RegisterRoutes(router *gin.Engine, handler *APIHandler) {
	v1 := router.Group("/api/v1/encoder")
	{
		v1.POST("/jobs", handler.SubmitJob)
		v1.GET("/jobs", handler.ListJobs)
		v1.GET("/jobs/:jobId", handler.GetJob)
		v1.POST("/jobs/:jobId/stop", handler.StopJob)
		v1.GET("/jobs/:jobId/control", handler.ControlSocket)

		v1.GET("/profiles", handler.ListProfiles)
		v1.GET("/health", handler.Health)
	}
}
