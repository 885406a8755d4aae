package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fuelwatch-backend/internal/model"
	"fuelwatch-backend/internal/normalize"
	"fuelwatch-backend/internal/store"
)

// SearchStations handles GET /api/stations?postcode=&city=&q=&limit=.
func (h *Handler) SearchStations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := store.StationQuery{
		Postcode: c.Query("postcode"),
		City:     c.Query("city"),
		Text:     c.Query("q"),
		Limit:    limit,
	}

	stations, err := h.store.SearchStations(c.Request.Context(), q)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to search stations"})
		return
	}
	c.JSON(http.StatusOK, stations)
}

// GetCurrentPrices handles GET /api/stations/{station_id}/prices: the most
// recent observation per fuel type.
func (h *Handler) GetCurrentPrices(c *gin.Context) {
	stationID, err := strconv.ParseUint(c.Param("station_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid station ID"})
		return
	}

	prices, err := h.store.CurrentPrices(c.Request.Context(), stationID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve prices"})
		return
	}
	if prices == nil {
		prices = []model.PriceObservation{}
	}
	c.JSON(http.StatusOK, prices)
}

// GetPriceHistory handles GET /api/stations/{station_id}/prices/history
// ?fuel_type=&days=.
func (h *Handler) GetPriceHistory(c *gin.Context) {
	stationID, err := strconv.ParseUint(c.Param("station_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid station ID"})
		return
	}

	fuelType, ok := normalize.MapFuelType(c.Query("fuel_type"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown fuel type"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	history, err := h.store.PriceHistory(c.Request.Context(), stationID, fuelType, days)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve price history"})
		return
	}
	if history == nil {
		history = []model.PriceObservation{}
	}
	c.JSON(http.StatusOK, history)
}
