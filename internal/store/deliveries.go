package store

import (
	"context"
	"fmt"

	"github.com/phd59fr/mailbridge/internal/models"
)

// DeliveryExists reports whether a delivery row exists for the
// (message, destination) pair, regardless of its state.
func (s *Store) DeliveryExists(ctx context.Context, messageID, destinationID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM deliveries WHERE message_id = ? AND destination_id = ?",
		messageID, destinationID,
	)
	if err != nil {
		return false, fmt.Errorf("checking delivery existence: %w", err)
	}
	return count > 0, nil
}

// InsertDelivery records a sent notification in state pending, keyed by
// the platform-assigned delivery id. The UNIQUE(message_id, destination_id)
// constraint makes re-insertion a no-op.
func (s *Store) InsertDelivery(ctx context.Context, messageID, destinationID, deliveryID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (message_id, destination_id, delivery_id)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id, destination_id) DO NOTHING`,
		messageID, destinationID, deliveryID,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// MarkHandled transitions the delivery with the given platform delivery id
// from pending to handled, recording the acting user. The transition is a
// single conditional update: exactly one concurrent caller wins, the
// others get ErrAlreadyHandled. A delivery id that was never recorded
// yields ErrNotFound.
func (s *Store) MarkHandled(ctx context.Context, deliveryID, actor int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET state = ?, handled_by = ?, handled_at = CURRENT_TIMESTAMP
		WHERE delivery_id = ? AND state = ?`,
		models.DeliveryHandled, actor, deliveryID, models.DeliveryPending,
	)
	if err != nil {
		return fmt.Errorf("marking delivery handled: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM deliveries WHERE delivery_id = ?", deliveryID); err != nil {
		return fmt.Errorf("checking delivery: %w", err)
	}
	if count > 0 {
		return ErrAlreadyHandled
	}
	return ErrNotFound
}

// DeliveryByID looks up a delivery by its platform delivery id.
func (s *Store) DeliveryByID(ctx context.Context, deliveryID int64) (*models.Delivery, error) {
	var delivery models.Delivery
	err := s.db.GetContext(ctx, &delivery, "SELECT * FROM deliveries WHERE delivery_id = ?", deliveryID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching delivery: %w", err)
	}
	return &delivery, nil
}

// DeliveriesForMessage returns every delivery row for one message.
func (s *Store) DeliveriesForMessage(ctx context.Context, messageID int64) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := s.db.SelectContext(ctx, &deliveries,
		"SELECT * FROM deliveries WHERE message_id = ? ORDER BY id", messageID)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return deliveries, nil
}
