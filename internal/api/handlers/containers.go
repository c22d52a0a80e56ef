package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/core"
	"freshtrack/internal/types"
)

// WorstStateAggregator computes the rollup state for a container.
// Implemented by hierarchy.Aggregator.
type WorstStateAggregator interface {
	WorstState(ctx context.Context, kind types.ContainerKind, containerID string) (types.HierarchyState, error)
}

// ContainerHandler serves aggregated hierarchy state for areas, sites, and
// organizations.
type ContainerHandler struct {
	aggregator WorstStateAggregator
	logger     types.Logger
}

// NewContainerHandler creates a ContainerHandler.
func NewContainerHandler(aggregator WorstStateAggregator, logger types.Logger) *ContainerHandler {
	return &ContainerHandler{aggregator: aggregator, logger: logger}
}

// RegisterRoutes mounts container routes on the provided router.
func (h *ContainerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/containers/{kind}/{containerID}/state", h.GetState)
}

// GetState handles GET /v1/containers/{kind}/{containerID}/state.
func (h *ContainerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	kind := types.ContainerKind(chi.URLParam(r, "kind"))
	switch kind {
	case types.ContainerArea, types.ContainerSite, types.ContainerOrganization:
	default:
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundContainer,
			"unknown container kind", nil))
		return
	}

	state, err := h.aggregator.WorstState(r.Context(), kind, chi.URLParam(r, "containerID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: state})
}
