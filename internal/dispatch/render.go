package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"freshtrack/internal/types"
)

// EmailPayload is the channel payload for email deliveries.
type EmailPayload struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text"`
}

// eventHeadline maps a lifecycle transition to the human phrasing used
// across both channels.
func eventHeadline(event types.AlertEvent) string {
	switch event.Kind {
	case types.AlertEventTriggered:
		if event.Severity == types.StateOffline {
			return fmt.Sprintf("Unit %s is offline", event.UnitID)
		}
		return fmt.Sprintf("Unit %s has a critical temperature excursion", event.UnitID)
	case types.AlertEventEscalated:
		return fmt.Sprintf("Alert for unit %s escalated to %s", event.UnitID, event.Severity)
	case types.AlertEventResolved:
		return fmt.Sprintf("Alert for unit %s resolved", event.UnitID)
	default:
		return fmt.Sprintf("Alert update for unit %s", event.UnitID)
	}
}

// RenderPayload formats a lifecycle event for a channel. SMS payloads are
// plain text and kept short; email payloads are a JSON EmailPayload the
// email channel unpacks.
func RenderPayload(event types.AlertEvent, channel types.ChannelType) ([]byte, error) {
	headline := eventHeadline(event)
	when := event.Timestamp.UTC().Format(time.RFC3339)

	switch channel {
	case types.ChannelSMS:
		return []byte(fmt.Sprintf("FreshTrack: %s at %s. Alert %s.", headline, when, event.AlertID)), nil

	case types.ChannelEmail:
		payload := EmailPayload{
			Subject: fmt.Sprintf("[FreshTrack] %s", headline),
			BodyHTML: fmt.Sprintf(
				"<h2>%s</h2><p>Severity: <strong>%s</strong></p><p>Time: %s</p><p>Alert ID: %s</p>",
				headline, event.Severity, when, event.AlertID),
			BodyText: fmt.Sprintf("%s\nSeverity: %s\nTime: %s\nAlert ID: %s",
				headline, event.Severity, when, event.AlertID),
		}
		return json.Marshal(payload)

	default:
		return nil, fmt.Errorf("dispatch: cannot render payload for channel %q", channel)
	}
}
