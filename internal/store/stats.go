package store

import (
	"context"
	"fmt"
	"time"
)

// GroupStats summarizes one destination's notification ledger.
type GroupStats struct {
	Total   int `db:"total"`
	Handled int `db:"handled"`
	Pending int `db:"pending"`
}

// OverallStats summarizes the whole store.
type OverallStats struct {
	Messages           int `db:"messages"`
	ActiveDestinations int `db:"active_destinations"`
	Deliveries         int `db:"deliveries"`
	Handled            int `db:"handled"`
}

// GroupStats returns the delivery counters for the destination with the given chat id.
func (s *Store) GroupStats(ctx context.Context, chatID int64) (GroupStats, error) {
	var stats GroupStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(dl.id) AS total,
			COALESCE(SUM(CASE WHEN dl.state = 'handled' THEN 1 ELSE 0 END), 0) AS handled,
			COALESCE(SUM(CASE WHEN dl.state = 'pending' THEN 1 ELSE 0 END), 0) AS pending
		FROM destinations d
		LEFT JOIN deliveries dl ON dl.destination_id = d.id
		WHERE d.chat_id = ?`,
		chatID,
	)
	if err != nil {
		return GroupStats{}, fmt.Errorf("reading group stats: %w", err)
	}
	return stats, nil
}

// OverallStats returns store-wide counters.
func (s *Store) OverallStats(ctx context.Context) (OverallStats, error) {
	var stats OverallStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM messages) AS messages,
			(SELECT COUNT(*) FROM destinations WHERE active = 1) AS active_destinations,
			(SELECT COUNT(*) FROM deliveries) AS deliveries,
			(SELECT COUNT(*) FROM deliveries WHERE state = 'handled') AS handled`,
	)
	if err != nil {
		return OverallStats{}, fmt.Errorf("reading overall stats: %w", err)
	}
	return stats, nil
}

// CleanupHandled prunes handled deliveries older than the retention window
// and any messages no delivery references anymore. It returns the number
// of deliveries removed.
func (s *Store) CleanupHandled(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM deliveries WHERE state = 'handled' AND handled_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning handled deliveries: %w", err)
	}
	deleted, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (SELECT DISTINCT message_id FROM deliveries)
		AND created_at < ?`,
		cutoff,
	)
	if err != nil {
		return deleted, fmt.Errorf("pruning orphaned messages: %w", err)
	}

	return deleted, nil
}
