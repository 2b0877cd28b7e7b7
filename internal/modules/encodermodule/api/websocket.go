package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

const writeWait = 10 * time.Second

// ControlSocket handles GET /api/v1/encoder/jobs/:jobId/control
//
// The server writes every outbound envelope, starting with a replay of
// those already sent, and closes the socket when the job's stream ends.
// The client may send {"type":"STOP_ENCODING"} at any time.
func (h *APIHandler) ControlSocket(c *gin.Context) {
	jobID := c.Param("jobId")

	msgs, cancel, err := h.jobs.Subscribe(jobID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error": "Job not found",
		})
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("job_id", jobID, "remote", c.Request.RemoteAddr)
	logger.Debug("control channel connected")

	// Inbound: only stop requests are meaningful
	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := types.ParseEnvelope(data)
			if err != nil {
				logger.Warn("invalid inbound envelope", "error", err)
				continue
			}
			accepted, err := h.jobs.Deliver(jobID, env)
			if err != nil {
				logger.Warn("inbound envelope rejected", "type", env.Type, "error", err)
				continue
			}
			logger.Info("stop requested over control channel", "accepted", accepted)
		}
	}()

	for msg := range msgs {
		data, err := msg.Envelope().Marshal()
		if err != nil {
			logger.Error("failed to encode envelope", "error", err)
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("control channel write failed", "error", err)
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"),
		time.Now().Add(writeWait))
	logger.Debug("control channel closed")
}
