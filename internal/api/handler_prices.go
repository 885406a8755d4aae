package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fuelwatch-backend/internal/normalize"
)

// GetCheapestPrice handles GET /api/prices/cheapest?fuel_type=&days=. Only
// stations with an observation inside the window are considered.
func (h *Handler) GetCheapestPrice(c *gin.Context) {
	fuelType, ok := normalize.MapFuelType(c.Query("fuel_type"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown fuel type"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "2"))
	if days <= 0 {
		days = 2
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	cheapest, err := h.store.CheapestCurrentPrice(c.Request.Context(), fuelType, since)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to find cheapest price"})
		return
	}
	if cheapest == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No current prices for that fuel type"})
		return
	}
	c.JSON(http.StatusOK, cheapest)
}

// GetPriceStats handles GET /api/prices/stats?fuel_type=&days=.
func (h *Handler) GetPriceStats(c *gin.Context) {
	fuelType, ok := normalize.MapFuelType(c.Query("fuel_type"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown fuel type"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats, err := h.store.PriceStatistics(c.Request.Context(), fuelType, since)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute price statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
