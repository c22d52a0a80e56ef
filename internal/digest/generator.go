// Package digest builds and delivers periodic alert summaries. The
// scheduler decides when a digest is due and publishes a DigestMessage; the
// worker in cmd/digest-worker runs it through the Generator here.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"freshtrack/internal/external"
	"freshtrack/internal/scheduler"
	"freshtrack/internal/types"
)

// ErrEmpty is returned when a digest period contains nothing worth
// sending. Callers skip delivery instead of mailing an empty summary.
var ErrEmpty = errors.New("digest: nothing to report for period")

// SubscriptionLister resolves the units a user watches. Implemented by
// db.UnitRepository.
type SubscriptionLister interface {
	ListSubscribedIDs(ctx context.Context, userID string) ([]string, error)
}

// AlertHistory serves the alert data a digest summarizes. Implemented by
// db.AlertRepository.
type AlertHistory interface {
	ListResolvedBetween(ctx context.Context, unitIDs []string, from, to time.Time) ([]*types.Alert, error)
	GetActiveByUnit(ctx context.Context, unitID string) (*types.Alert, error)
}

// ContactLister resolves digest destinations. Implemented by
// db.ContactRepository.
type ContactLister interface {
	ListEnabledForUser(ctx context.Context, userID string, channel types.ChannelType) ([]types.Contact, error)
}

// Content is one user's digest for one period, ready for rendering.
type Content struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Resolved    []*types.Alert
	Active      []*types.Alert
}

// Generator assembles digest content from the alert history.
type Generator struct {
	subs   SubscriptionLister
	alerts AlertHistory
	logger types.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(subs SubscriptionLister, alerts AlertHistory, logger types.Logger) *Generator {
	return &Generator{subs: subs, alerts: alerts, logger: logger}
}

// Build assembles the digest for one message: incidents resolved during the
// period plus incidents still open at generation time, across the user's
// subscribed units. Returns ErrEmpty when there is nothing to report.
func (g *Generator) Build(ctx context.Context, msg scheduler.DigestMessage) (*Content, error) {
	unitIDs, err := g.subs.ListSubscribedIDs(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	if len(unitIDs) == 0 {
		return nil, ErrEmpty
	}

	resolved, err := g.alerts.ListResolvedBetween(ctx, unitIDs, msg.PeriodStart, msg.PeriodEnd)
	if err != nil {
		return nil, err
	}

	var active []*types.Alert
	for _, unitID := range unitIDs {
		alert, err := g.alerts.GetActiveByUnit(ctx, unitID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		active = append(active, alert)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].TriggeredAt.Before(active[j].TriggeredAt) })

	if len(resolved) == 0 && len(active) == 0 {
		return nil, ErrEmpty
	}

	return &Content{
		PeriodStart: msg.PeriodStart,
		PeriodEnd:   msg.PeriodEnd,
		Resolved:    resolved,
		Active:      active,
	}, nil
}

// Render formats a digest as subject and plain-text body. Times are shown
// in the user's timezone; an unloadable timezone falls back to UTC rather
// than dropping the digest.
func Render(c *Content, cadence types.DigestCadence, tz string) (subject, body string) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	label := "Daily"
	if cadence == types.CadenceWeekly {
		label = "Weekly"
	}
	subject = fmt.Sprintf("%s storage digest: %d resolved, %d active",
		label, len(c.Resolved), len(c.Active))

	var b strings.Builder
	fmt.Fprintf(&b, "Summary for %s to %s\n\n",
		c.PeriodStart.In(loc).Format("Mon Jan 2 15:04"),
		c.PeriodEnd.In(loc).Format("Mon Jan 2 15:04"))

	if len(c.Active) > 0 {
		b.WriteString("Open incidents:\n")
		for _, a := range c.Active {
			fmt.Fprintf(&b, "  - unit %s: %s since %s\n",
				a.UnitID, a.Severity, a.TriggeredAt.In(loc).Format("Mon Jan 2 15:04"))
		}
		b.WriteString("\n")
	}

	if len(c.Resolved) > 0 {
		b.WriteString("Resolved this period:\n")
		for _, a := range c.Resolved {
			fmt.Fprintf(&b, "  - unit %s: %s, %s to %s\n",
				a.UnitID, a.Severity,
				a.TriggeredAt.In(loc).Format("Mon Jan 2 15:04"),
				a.ResolvedAt.In(loc).Format("Mon Jan 2 15:04"))
		}
	}

	return subject, b.String()
}

// Deliverer emails rendered digests to a user's enabled email contacts.
type Deliverer struct {
	contacts ContactLister
	provider external.EmailProvider
	logger   types.Logger
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(contacts ContactLister, provider external.EmailProvider, logger types.Logger) *Deliverer {
	return &Deliverer{contacts: contacts, provider: provider, logger: logger}
}

// Deliver sends the digest to every enabled email contact. Fail-soft per
// contact: one bad address does not block the others, and a user with no
// email contacts is a no-op, not an error.
func (d *Deliverer) Deliver(ctx context.Context, userID, subject, body string) error {
	contacts, err := d.contacts.ListEnabledForUser(ctx, userID, types.ChannelEmail)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		d.logger.Info("no email contacts for digest, skipping", "user_id", userID)
		return nil
	}

	for _, c := range contacts {
		msgID, err := d.provider.Send(ctx, external.EmailInput{
			To:       c.Destination,
			Subject:  subject,
			BodyText: body,
		})
		if err != nil {
			d.logger.Error("digest delivery failed",
				"user_id", userID, "contact_id", c.ID, "error", err)
			continue
		}
		d.logger.Info("digest delivered",
			"user_id", userID, "contact_id", c.ID, "provider_message_id", msgID)
	}
	return nil
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAlert
}
