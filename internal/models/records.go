package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Delivery states.
const (
	DeliveryPending = "pending"
	DeliveryHandled = "handled"
)

// Message is a persisted, deduplicated email record. The fingerprint is a
// digest over (message id, sender, subject) and is unique per row.
type Message struct {
	ID          int64     `db:"id"`
	Fingerprint string    `db:"fingerprint"`
	Account     string    `db:"account"`
	Sender      string    `db:"sender"`
	Subject     string    `db:"subject"`
	Preview     string    `db:"preview"`
	ReceivedAt  time.Time `db:"received_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// Destination is a subscribed chat group. FilterJSON is a JSON array of
// account labels, or NULL when the group receives mail from all accounts.
type Destination struct {
	ID         int64          `db:"id"`
	ChatID     int64          `db:"chat_id"`
	Title      string         `db:"title"`
	Active     bool           `db:"active"`
	FilterJSON sql.NullString `db:"filter_json"`
	AddedBy    int64          `db:"added_by"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// FilterLabels decodes the destination's account-label filter. It returns
// nil when no filter is set or the stored value cannot be decoded, both of
// which mean the destination receives mail from every account.
func (d Destination) FilterLabels() []string {
	if !d.FilterJSON.Valid || d.FilterJSON.String == "" {
		return nil
	}

	var labels []string
	if err := json.Unmarshal([]byte(d.FilterJSON.String), &labels); err != nil {
		return nil
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

// Eligible reports whether mail from the given account label should be
// delivered to this destination.
func (d Destination) Eligible(accountLabel string) bool {
	labels := d.FilterLabels()
	if labels == nil {
		return true
	}
	for _, label := range labels {
		if label == accountLabel {
			return true
		}
	}
	return false
}

// Delivery joins a Message to a Destination: one sent notification with
// its own acknowledgment state.
type Delivery struct {
	ID            int64         `db:"id"`
	MessageID     int64         `db:"message_id"`
	DestinationID int64         `db:"destination_id"`
	DeliveryID    int64         `db:"delivery_id"`
	State         string        `db:"state"`
	HandledBy     sql.NullInt64 `db:"handled_by"`
	HandledAt     sql.NullTime  `db:"handled_at"`
	CreatedAt     time.Time     `db:"created_at"`
}
