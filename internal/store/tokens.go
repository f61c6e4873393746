package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// SaveToken stores a flow token. Used as the fallback token store when
// redis is down.
func (s *Store) SaveToken(ctx context.Context, t *models.FlowToken) error {
	_, err := s.ExecContext(ctx, `
		INSERT OR REPLACE INTO flow_tokens (token, mobile, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		t.Token, t.Mobile, t.CreatedAt, t.ExpiresAt,
	)
	return storageErr(err)
}

// LookupToken returns the flow token if it exists and has not expired.
func (s *Store) LookupToken(ctx context.Context, token string) (*models.FlowToken, error) {
	var t models.FlowToken
	err := s.QueryRowContext(ctx,
		"SELECT token, mobile, created_at, expires_at FROM flow_tokens WHERE token = ?",
		token,
	).Scan(&t.Token, &t.Mobile, &t.CreatedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if t.ExpiresAt.Before(time.Now()) {
		return nil, booking.ErrNotFound
	}
	return &t, nil
}

// PurgeExpiredTokens removes lapsed flow tokens. Called from the sweep.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.ExecContext(ctx,
		"DELETE FROM flow_tokens WHERE expires_at < ?", now,
	)
	if err != nil {
		return 0, storageErr(err)
	}
	n, err := res.RowsAffected()
	return n, storageErr(err)
}
