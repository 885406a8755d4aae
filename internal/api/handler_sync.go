package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetSyncRuns handles GET /api/sync/runs?limit=: the recent audit log.
func (h *Handler) GetSyncRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.store.RecentSyncRuns(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// TriggerStationSync handles POST /api/sync/stations, for external cron
// callers. The response is the structured sync result either way; a failed
// run is a 502 with counts, not an opaque error.
func (h *Handler) TriggerStationSync(c *gin.Context) {
	if h.engine == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Sync engine is not running"})
		return
	}
	result := h.engine.SyncStations(c.Request.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// TriggerPriceSync handles POST /api/sync/prices?since=RFC3339.
func (h *Handler) TriggerPriceSync(c *gin.Context) {
	if h.engine == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Sync engine is not running"})
		return
	}

	var since *time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return
		}
		since = &t
	}

	result := h.engine.SyncPrices(c.Request.Context(), since)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}
