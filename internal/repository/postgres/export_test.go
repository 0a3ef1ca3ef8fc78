package postgres

import "context"

// Truncate empties all tables between tests
func Truncate(ctx context.Context, r *Repository) error {
	_, err := r.db.Exec(ctx, `TRUNCATE mic_requests, participants, rooms`)
	return err
}
