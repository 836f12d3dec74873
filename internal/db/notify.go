package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"vetbox-triage/pkg"
)

// DefaultChannel is the NOTIFY channel for finished triage sessions.
const DefaultChannel = "triage_outcomes"

// Notifier publishes triage outcomes with PostgreSQL NOTIFY so a clinic
// dashboard can LISTEN for finished sessions.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends payload on the channel.  NOTIFY takes no bind parameters, so
// both the channel and the payload are quoted.
func (n *Notifier) Notify(ctx context.Context, payload string) error {
	q := fmt.Sprintf("NOTIFY %s, %s", pq.QuoteIdentifier(n.Channel), pq.QuoteLiteral(payload))
	if _, err := n.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}

// Publish sends the outcome as JSON.  It satisfies core.OutcomeSink.
func (n *Notifier) Publish(ctx context.Context, o pkg.Outcome) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return n.Notify(ctx, string(raw))
}
