package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phd59fr/mailbridge/internal/models"
)

// Subscribe creates the destination for chatID or reactivates it when it
// was previously unsubscribed. The account filter is left untouched on
// resubscribe.
func (s *Store) Subscribe(ctx context.Context, chatID int64, title string, addedBy int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO destinations (chat_id, title, active, added_by)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title = excluded.title,
			active = 1,
			updated_at = CURRENT_TIMESTAMP`,
		chatID, title, addedBy,
	)
	if err != nil {
		return fmt.Errorf("subscribing chat %d: %w", chatID, err)
	}
	return nil
}

// Unsubscribe soft-deletes the destination by clearing its active flag.
// It reports whether an active subscription existed.
func (s *Store) Unsubscribe(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE destinations
		SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE chat_id = ? AND active = 1`,
		chatID,
	)
	if err != nil {
		return false, fmt.Errorf("unsubscribing chat %d: %w", chatID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetFilter replaces the destination's account-label filter. A nil or
// empty list clears the filter, meaning the destination receives mail
// from every account. It reports whether the destination exists.
func (s *Store) SetFilter(ctx context.Context, chatID int64, labels []string) (bool, error) {
	var filterJSON interface{}
	if len(labels) > 0 {
		encoded, err := json.Marshal(labels)
		if err != nil {
			return false, fmt.Errorf("encoding filter: %w", err)
		}
		filterJSON = string(encoded)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE destinations
		SET filter_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE chat_id = ?`,
		filterJSON, chatID,
	)
	if err != nil {
		return false, fmt.Errorf("updating filter for chat %d: %w", chatID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DestinationByChatID looks up a destination regardless of its active flag.
func (s *Store) DestinationByChatID(ctx context.Context, chatID int64) (*models.Destination, error) {
	var dest models.Destination
	err := s.db.GetContext(ctx, &dest, "SELECT * FROM destinations WHERE chat_id = ?", chatID)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching destination: %w", err)
	}
	return &dest, nil
}

// ActiveDestinations returns every destination with the active flag set.
func (s *Store) ActiveDestinations(ctx context.Context) ([]models.Destination, error) {
	var dests []models.Destination
	err := s.db.SelectContext(ctx, &dests, "SELECT * FROM destinations WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing active destinations: %w", err)
	}
	return dests, nil
}

// Deactivate clears the active flag without going through the
// subscription surface, used when a chat is permanently unreachable.
func (s *Store) Deactivate(ctx context.Context, destinationID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE destinations
		SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		destinationID,
	)
	if err != nil {
		return fmt.Errorf("deactivating destination %d: %w", destinationID, err)
	}
	return nil
}
