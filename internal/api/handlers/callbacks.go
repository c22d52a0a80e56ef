package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"freshtrack/internal/core"
	"freshtrack/internal/db"
	"freshtrack/internal/types"
)

// CallbackAttemptStore resolves and updates attempts addressed by provider
// message ID. Mirrors db.AttemptRepository.
type CallbackAttemptStore interface {
	GetByProviderMessageID(ctx context.Context, providerMsgID string) (*types.NotificationAttempt, error)
	UpdateStatus(ctx context.Context, attemptID string, u db.StatusUpdate) error
}

// FailureClassifier maps a provider error code to the failure taxonomy.
// Implemented by dispatch.Taxonomy.
type FailureClassifier interface {
	Classify(channel types.ChannelType, code string) types.FailureCategory
}

// CallbackHandler ingests asynchronous delivery-status callbacks from the
// SMS and email providers. Providers report outcomes (delivered, bounced,
// failed) after the synchronous send already returned.
type CallbackHandler struct {
	attempts CallbackAttemptStore
	taxonomy FailureClassifier
	logger   types.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(attempts CallbackAttemptStore, taxonomy FailureClassifier, logger types.Logger) *CallbackHandler {
	return &CallbackHandler{attempts: attempts, taxonomy: taxonomy, logger: logger}
}

// RegisterRoutes mounts callback routes on the provided router. The caller
// wraps the router with CallbackAuthMiddleware and a rate limiter.
func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Post("/callbacks/{channel}", h.Receive)
}

// DeliveryStatusCallback is the normalized callback body. Provider-specific
// webhook shapes are translated to this form at the edge.
type DeliveryStatusCallback struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
	ErrorCode         string `json:"error_code,omitempty"`
}

// Receive handles POST /v1/callbacks/{channel}.
//
// Callbacks are inherently late and at-least-once. Unknown message IDs and
// updates against terminal attempts answer 200 so providers stop retrying;
// there is nothing a redelivery would fix.
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channel := types.ChannelType(chi.URLParam(r, "channel"))
	if channel != types.ChannelSMS && channel != types.ChannelEmail {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundAttempt,
			"unknown callback channel", nil))
		return
	}

	var cb DeliveryStatusCallback
	if err := core.DecodeJSON(w, r, &cb); err != nil {
		core.Error(w, r, err)
		return
	}
	if cb.ProviderMessageID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"provider_message_id is required", nil))
		return
	}

	attempt, err := h.attempts.GetByProviderMessageID(r.Context(), cb.ProviderMessageID)
	if err != nil {
		if isAppErrCode(err, types.ErrCodeNotFoundAttempt) {
			h.logger.Warn("callback for unknown message dropped",
				"provider_message_id", cb.ProviderMessageID, "channel", channel)
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"result": "dropped"}})
			return
		}
		core.Error(w, r, err)
		return
	}

	update, apply := h.translate(channel, cb)
	if !apply {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"result": "ignored"}})
		return
	}

	if err := h.attempts.UpdateStatus(r.Context(), attempt.ID, update); err != nil {
		if isAppErrCode(err, types.ErrCodeConflictTerminalState) {
			h.logger.Info("late callback against terminal attempt dropped",
				"attempt_id", attempt.ID, "status", cb.Status)
			core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"result": "dropped"}})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"result": "applied"}})
}

// translate maps a provider callback to an attempt status update. Statuses
// outside the known set are ignored rather than rejected, providers add
// intermediate states without notice.
func (h *CallbackHandler) translate(channel types.ChannelType, cb DeliveryStatusCallback) (db.StatusUpdate, bool) {
	switch cb.Status {
	case "delivered", "sent":
		return db.StatusUpdate{
			Status:        types.AttemptSent,
			ProviderMsgID: cb.ProviderMessageID,
		}, true
	case "failed", "bounced", "undelivered":
		category := h.taxonomy.Classify(channel, cb.ErrorCode)
		status := types.AttemptFailedPermanent
		if category.ShouldRetry() {
			// The dispatcher's retry pipeline owns retryable failures; a
			// callback-reported retryable failure parks the attempt for the
			// requeue job.
			status = types.AttemptFailedRetryable
		}
		return db.StatusUpdate{
			Status:            status,
			ProviderErrorCode: cb.ErrorCode,
			FailureCategory:   category,
		}, true
	default:
		return db.StatusUpdate{}, false
	}
}

func isAppErrCode(err error, code types.ErrorCode) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
