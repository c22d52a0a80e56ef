package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/core"
	"freshtrack/internal/types"
)

// DigestSync reconciles a user's digest preferences into schedules.
// Implemented by scheduler.DigestScheduler.
type DigestSync interface {
	Sync(ctx context.Context, userID string, prefs types.DigestPreferences) error
	RemoveAll(ctx context.Context, userID string) error
}

// DigestScheduleReader lists a user's current schedules. Implemented by
// db.DigestRepository.
type DigestScheduleReader interface {
	ListForUser(ctx context.Context, userID string) ([]types.DigestSchedule, error)
}

// DigestHandler manages per-user digest subscription preferences.
type DigestHandler struct {
	scheduler DigestSync
	schedules DigestScheduleReader
	logger    types.Logger
}

// NewDigestHandler creates a DigestHandler.
func NewDigestHandler(scheduler DigestSync, schedules DigestScheduleReader, logger types.Logger) *DigestHandler {
	return &DigestHandler{scheduler: scheduler, schedules: schedules, logger: logger}
}

// RegisterRoutes mounts digest preference routes on the provided router.
func (h *DigestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users/{userID}/digests", h.List)
	r.Put("/users/{userID}/digests", h.Put)
	r.Delete("/users/{userID}/digests", h.Delete)
}

// List handles GET /v1/users/{userID}/digests. A user with no schedules
// gets an empty list, not a 404.
func (h *DigestHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []types.DigestSchedule{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedules})
}

// DigestPreferencesRequest is the request body for PUT /v1/users/{userID}/digests.
type DigestPreferencesRequest struct {
	Cadences []types.DigestCadence `json:"cadences"`
	Timezone string                `json:"timezone"`
}

// Put handles PUT /v1/users/{userID}/digests. Replaces the user's digest
// subscriptions wholesale; an empty cadence list unsubscribes.
func (h *DigestHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req DigestPreferencesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs := types.DigestPreferences{Cadences: req.Cadences, Timezone: req.Timezone}
	if err := h.scheduler.Sync(r.Context(), userID, prefs); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: prefs})
}

// Delete handles DELETE /v1/users/{userID}/digests.
func (h *DigestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RemoveAll(r.Context(), chi.URLParam(r, "userID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
