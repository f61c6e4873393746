package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// Issuer mints flow tokens tied to the requesting mobile number.
type Issuer struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
}

func NewIssuer(store Store, clk clock.Clock, ttl time.Duration) *Issuer {
	return &Issuer{store: store, clock: clk, ttl: ttl}
}

// Issue creates and persists a fresh token for the mobile number. Each
// inbound conversation start gets its own token.
func (i *Issuer) Issue(ctx context.Context, mobile string) (*models.FlowToken, error) {
	now := i.clock.Now()
	t := &models.FlowToken{
		Token:     models.NewFlowTokenValue(),
		Mobile:    mobile,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// isInfra reports whether err is a backend outage rather than a domain
// answer like a missing token.
func isInfra(err error) bool {
	return errors.Is(err, booking.ErrStorageUnavailable)
}
