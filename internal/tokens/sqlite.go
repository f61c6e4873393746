package tokens

import (
	"context"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/store"
)

// SQLiteStore adapts the booking database's flow_tokens table to the token
// Store interface. It is the failover's fallback backend.
type SQLiteStore struct {
	db *store.Store
}

func NewSQLiteStore(db *store.Store) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Save(ctx context.Context, t *models.FlowToken) error {
	return s.db.SaveToken(ctx, t)
}

func (s *SQLiteStore) Lookup(ctx context.Context, token string) (*models.FlowToken, error) {
	return s.db.LookupToken(ctx, token)
}

func (s *SQLiteStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	return s.db.PurgeExpiredTokens(ctx, now)
}
