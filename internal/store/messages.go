package store

import (
	"context"
	"fmt"

	"github.com/phd59fr/mailbridge/internal/models"
)

// InsertMessage inserts the message identified by its fingerprint and
// returns the row id. Insertion is idempotent: when the fingerprint
// already exists, the existing id is returned and nothing is written.
func (s *Store) InsertMessage(ctx context.Context, email *models.Email) (int64, error) {
	fingerprint := Fingerprint(email.MessageID, email.Sender, email.Subject)
	account := fmt.Sprintf("%s (%s)", email.AccountLabel, email.AccountEmail)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (fingerprint, account, sender, subject, preview, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		fingerprint, account, email.Sender, email.Subject, email.Preview, email.Received.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return res.LastInsertId()
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT id FROM messages WHERE fingerprint = ?", fingerprint); err != nil {
		return 0, fmt.Errorf("fetching existing message: %w", err)
	}
	return id, nil
}

// MessageByFingerprint looks up a persisted message record.
func (s *Store) MessageByFingerprint(ctx context.Context, fingerprint string) (*models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, "SELECT * FROM messages WHERE fingerprint = ?", fingerprint)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}
	return &msg, nil
}
