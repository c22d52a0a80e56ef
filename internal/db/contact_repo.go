package db

import (
	"context"

	"freshtrack/internal/types"
)

// ContactRepository provides data access for the contacts table, the
// notification destinations for responsible humans.
type ContactRepository struct {
	db DBTX
}

// NewContactRepository creates a ContactRepository backed by the given
// database connection (pool or transaction).
func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

// ListEnabledForUnit retrieves the enabled contacts responsible for a unit,
// resolved through the unit's organization subscription table. Disabled
// contacts are excluded at the query so they never reach the dispatcher.
func (r *ContactRepository) ListEnabledForUnit(ctx context.Context, unitID string) ([]types.Contact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.user_id, c.channel, c.destination, c.enabled
		 FROM contacts c
		 JOIN unit_subscriptions us ON us.user_id = c.user_id
		 WHERE us.unit_id = $1 AND c.enabled
		 ORDER BY c.id`,
		unitID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list contacts", err)
	}
	defer rows.Close()

	var contacts []types.Contact
	for rows.Next() {
		var c types.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Channel, &c.Destination, &c.Enabled); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan contact row", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating contact rows", err)
	}

	return contacts, nil
}

// ListEnabledForUser retrieves a user's enabled contacts on one channel.
// Used by digest delivery, which only goes out over email.
func (r *ContactRepository) ListEnabledForUser(ctx context.Context, userID string, channel types.ChannelType) ([]types.Contact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, channel, destination, enabled
		 FROM contacts
		 WHERE user_id = $1 AND channel = $2 AND enabled
		 ORDER BY id`,
		userID, channel,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user contacts", err)
	}
	defer rows.Close()

	var contacts []types.Contact
	for rows.Next() {
		var c types.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Channel, &c.Destination, &c.Enabled); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan contact row", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating contact rows", err)
	}

	return contacts, nil
}

// GetByID retrieves a single contact.
func (r *ContactRepository) GetByID(ctx context.Context, contactID string) (*types.Contact, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, channel, destination, enabled
		 FROM contacts WHERE id = $1`,
		contactID,
	)

	var c types.Contact
	if err := row.Scan(&c.ID, &c.UserID, &c.Channel, &c.Destination, &c.Enabled); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get contact", err)
	}
	return &c, nil
}

// Disable marks a contact disabled. Called when a provider reports the
// destination permanently blocked (opted out, bounced) so future alerts
// stop burning attempts on it.
func (r *ContactRepository) Disable(ctx context.Context, contactID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE contacts SET enabled = FALSE WHERE id = $1`,
		contactID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to disable contact", err)
	}
	return nil
}
