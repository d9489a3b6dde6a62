package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/overtime"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/schedule"
	"smart-building-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	relays    relaystate.Store
	coord     *coordinator.Coordinator
	schedules *schedule.Evaluator
	overtime  *overtime.Evaluator
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, relays relaystate.Store, coord *coordinator.Coordinator, schedules *schedule.Evaluator, ot *overtime.Evaluator, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		relays:    relays,
		coord:     coord,
		schedules: schedules,
		overtime:  ot,
		webpush:   webpushOptions,
	}
}
