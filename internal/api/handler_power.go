package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetPowerUsage handles GET /api/power_usage, optionally filtered by
// machine and recorded-at date range (RFC3339).
func (h *Handler) GetPowerUsage(c *gin.Context) {
	var from, to *time.Time
	if startRaw := c.Query("startDate"); startRaw != "" {
		endRaw := c.Query("endDate")
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
			return
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
			return
		}
		from, to = &start, &end
	}

	records, err := h.store.ListPowerUsage(c.Request.Context(), c.Query("machineId"), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"powerUsageData": records})
}

// ListWashingModes handles GET /api/washing_modes.
func (h *Handler) ListWashingModes(c *gin.Context) {
	modes, err := h.store.ListWashingModes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, modes)
}
