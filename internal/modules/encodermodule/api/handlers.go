package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/core/session"
	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// APIHandler serves the encoder controller API.
type APIHandler struct {
	jobs      JobService
	profiles  ProfileLister
	processes ProcessLister
	upgrader  websocket.Upgrader
	logger    hclog.Logger
}

// NewAPIHandler creates the API handler. processes may be nil.
func NewAPIHandler(jobs JobService, profiles ProfileLister, processes ProcessLister, logger hclog.Logger) *APIHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &APIHandler{
		jobs:      jobs,
		profiles:  profiles,
		processes: processes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy is enforced by the CORS layer
			},
		},
		logger: logger.Named("api"),
	}
}

// SubmitJob handles POST /api/v1/encoder/jobs
//
// The body is a JobSpecification. The job starts at once; a specification
// that fails validation still gets a job id and ends Failed with an ERROR
// message on its control channel.
//
// Response (202):
//
//	{
//	  "jobId": "string",
//	  "state": "created"
//	}
func (h *APIHandler) SubmitJob(c *gin.Context) {
	var spec types.JobSpecification
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid job specification",
			"details": err.Error(),
		})
		return
	}

	info, err := h.jobs.Submit(c.Request.Context(), spec)
	if err != nil {
		h.logger.Warn("job submission rejected", "error", err)
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to submit job",
			"details": encerr.Describe(err),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId": info.JobID,
		"state": info.State,
	})
}

// ListJobs handles GET /api/v1/encoder/jobs
func (h *APIHandler) ListJobs(c *gin.Context) {
	jobs := h.jobs.List()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/encoder/jobs/:jobId
func (h *APIHandler) GetJob(c *gin.Context) {
	info, err := h.jobs.Get(c.Param("jobId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error": "Job not found",
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

// StopJob handles POST /api/v1/encoder/jobs/:jobId/stop
//
// Response:
//
//	{
//	  "jobId": "string",
//	  "stopRequested": true
//	}
//
// stopRequested is false when the job had already finished.
func (h *APIHandler) StopJob(c *gin.Context) {
	jobID := c.Param("jobId")

	accepted, err := h.jobs.Stop(jobID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":         jobID,
		"stopRequested": accepted,
	})
}

// ListProfiles handles GET /api/v1/encoder/profiles
func (h *APIHandler) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": h.profiles.Profiles(),
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, encerr.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, encerr.ErrJobLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
