package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	listeners func() int
}

// NewHealthHandler creates a new health handler. listeners reports how many
// handshakes are waiting for a callback message.
func NewHealthHandler(listeners func() int) *HealthHandler {
	return &HealthHandler{listeners: listeners}
}

// Health returns the health status of the callback server
func (h *HealthHandler) Health(c *gin.Context) {
	waiting := 0
	if h.listeners != nil {
		waiting = h.listeners()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"awaiting_callback": waiting > 0,
	})
}
