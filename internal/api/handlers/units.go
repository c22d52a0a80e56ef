package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/core"
	"freshtrack/internal/types"
)

// maxAlertHistory bounds the per-unit alert listing.
const maxAlertHistory = 50

// UnitRepo provides unit metadata. Mirrors db.UnitRepository.
type UnitRepo interface {
	GetByID(ctx context.Context, unitID string) (*types.Unit, error)
}

// UnitStateResolver computes the current state of a unit. Implemented by
// hierarchy.CachedResolver.
type UnitStateResolver interface {
	Resolve(ctx context.Context, unit types.Unit) (types.UnitState, error)
}

// RuleRepo reads and writes unit threshold rules. Mirrors db.RuleRepository.
type RuleRepo interface {
	GetByUnit(ctx context.Context, unitID string) (*types.AlertRule, error)
	Upsert(ctx context.Context, rule *types.AlertRule) error
}

// AlertRepo serves alert history and acknowledgement. Mirrors
// db.AlertRepository.
type AlertRepo interface {
	ListByUnit(ctx context.Context, unitID string, limit int) ([]*types.Alert, error)
	Acknowledge(ctx context.Context, alertID, userID string) error
}

// RuleCacheInvalidator drops a unit's cached state after its thresholds
// change so the next read reclassifies. Implemented by statecache.Cache.
type RuleCacheInvalidator interface {
	Invalidate(unitID string)
}

// UnitHandler serves unit state, threshold rules, and alert history.
type UnitHandler struct {
	units    UnitRepo
	resolver UnitStateResolver
	rules    RuleRepo
	alerts   AlertRepo
	cache    RuleCacheInvalidator
	logger   types.Logger
}

// NewUnitHandler creates a UnitHandler.
func NewUnitHandler(units UnitRepo, resolver UnitStateResolver, rules RuleRepo,
	alerts AlertRepo, cache RuleCacheInvalidator, logger types.Logger) *UnitHandler {
	return &UnitHandler{
		units:    units,
		resolver: resolver,
		rules:    rules,
		alerts:   alerts,
		cache:    cache,
		logger:   logger,
	}
}

// RegisterRoutes mounts unit routes on the provided router.
func (h *UnitHandler) RegisterRoutes(r chi.Router) {
	r.Route("/units/{unitID}", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/rule", h.GetRule)
		r.Put("/rule", h.PutRule)
		r.Get("/alerts", h.ListAlerts)
	})
	r.Post("/alerts/{alertID}/ack", h.AcknowledgeAlert)
}

// GetState handles GET /v1/units/{unitID}/state.
func (h *UnitHandler) GetState(w http.ResponseWriter, r *http.Request) {
	unit, err := h.units.GetByID(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	state, err := h.resolver.Resolve(r.Context(), *unit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: state})
}

// GetRule handles GET /v1/units/{unitID}/rule.
func (h *UnitHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetByUnit(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rule})
}

// UpsertRuleRequest is the request body for PUT /v1/units/{unitID}/rule.
type UpsertRuleRequest struct {
	TempMin                      float64 `json:"temp_min"`
	TempMax                      float64 `json:"temp_max"`
	ConsecutiveReadingsToTrigger int     `json:"consecutive_readings_to_trigger"`
	ConsecutiveReadingsToResolve int     `json:"consecutive_readings_to_resolve"`
}

// PutRule handles PUT /v1/units/{unitID}/rule. Upsert semantics: one rule
// per unit, replaced wholesale.
func (h *UnitHandler) PutRule(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")

	var req UpsertRuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.units.GetByID(r.Context(), unitID); err != nil {
		core.Error(w, r, err)
		return
	}

	rule := &types.AlertRule{
		UnitID:                       unitID,
		TempMin:                      req.TempMin,
		TempMax:                      req.TempMax,
		ConsecutiveReadingsToTrigger: req.ConsecutiveReadingsToTrigger,
		ConsecutiveReadingsToResolve: req.ConsecutiveReadingsToResolve,
	}
	if err := types.ValidateRule(rule); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.rules.Upsert(r.Context(), rule); err != nil {
		core.Error(w, r, err)
		return
	}

	// New thresholds invalidate the cached classification.
	if h.cache != nil {
		h.cache.Invalidate(unitID)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rule})
}

// ListAlerts handles GET /v1/units/{unitID}/alerts.
func (h *UnitHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListByUnit(r.Context(), chi.URLParam(r, "unitID"), maxAlertHistory)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*types.Alert{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: alerts})
}

// AcknowledgeAlertRequest is the request body for POST /v1/alerts/{alertID}/ack.
type AcknowledgeAlertRequest struct {
	UserID string `json:"user_id"`
}

// AcknowledgeAlert handles POST /v1/alerts/{alertID}/ack. Acknowledging
// marks who is handling the alert; it never resolves it, only in-range
// readings do that.
func (h *UnitHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeAlertRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.UserID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"user_id is required", nil))
		return
	}

	if err := h.alerts.Acknowledge(r.Context(), chi.URLParam(r, "alertID"), req.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]any{"acknowledged_at": time.Now().UTC()},
	})
}
