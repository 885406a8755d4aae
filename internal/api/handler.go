package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"fuelwatch-backend/internal/store"
	syncengine "fuelwatch-backend/internal/sync"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *syncengine.Engine
	webpush *webpush.Options
}

// NewHandler creates a new API handler. engine may be nil when the server
// runs without sync trigger endpoints.
func NewHandler(s store.Store, engine *syncengine.Engine, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  engine,
		webpush: webpushOptions,
	}
}
