// Package handlers contains the HTTP handler implementations for the
// FreshTrack API. Handlers depend on locally defined interfaces so tests
// can inject fakes without touching the concrete repositories.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/core"
	"freshtrack/internal/types"
)

// ReadingEnqueuer hands a validated reading to the ingestion queue.
// Implemented by queue.ReadingTrigger.
type ReadingEnqueuer interface {
	Enqueue(ctx context.Context, msg types.ReadingMessage) error
}

// ReadingHandler accepts sensor readings and enqueues them for asynchronous
// classification. The endpoint answers 202: acceptance means the reading is
// durably queued, not yet classified.
type ReadingHandler struct {
	trigger ReadingEnqueuer
	logger  types.Logger
}

// NewReadingHandler creates a ReadingHandler.
func NewReadingHandler(trigger ReadingEnqueuer, logger types.Logger) *ReadingHandler {
	return &ReadingHandler{trigger: trigger, logger: logger}
}

// RegisterRoutes mounts reading routes on the provided router.
func (h *ReadingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/readings", h.Submit)
}

// SubmitReadingRequest is the request body for POST /v1/readings.
type SubmitReadingRequest struct {
	UnitID      string    `json:"unit_id"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// SubmitReadingResponse confirms queue acceptance.
type SubmitReadingResponse struct {
	Accepted bool   `json:"accepted"`
	TraceID  string `json:"trace_id"`
}

// Submit handles POST /v1/readings.
func (h *ReadingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitReadingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Shape validation happens here so sensors get synchronous feedback;
	// the worker revalidates before persisting.
	reading := &types.Reading{
		UnitID:      req.UnitID,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		ObservedAt:  req.ObservedAt,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := types.ValidateReading(reading); err != nil {
		core.Error(w, r, err)
		return
	}

	msg := types.ReadingMessage{
		UnitID:      req.UnitID,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		ObservedAt:  req.ObservedAt,
		TraceID:     types.GetRequestID(r.Context()),
	}
	if err := h.trigger.Enqueue(r.Context(), msg); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{
		Data: SubmitReadingResponse{Accepted: true, TraceID: msg.TraceID},
	})
}
