package tokens

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the failover waits before probing a downed
// primary again.
const recoveryInterval = time.Minute

// Store is the token persistence the failover composes.
type Store interface {
	Save(ctx context.Context, t *models.FlowToken) error
	Lookup(ctx context.Context, token string) (*models.FlowToken, error)
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Failover serves from primary (redis) and drops to fallback (sqlite) on
// errors. While the primary is marked down, calls go straight to the
// fallback until the recovery interval elapses.
type Failover struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailover(primary, fallback Store, logger *zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

// usePrimary reports whether this call should try the primary.
func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recoveryInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *Failover) markDown(err error) {
	if f.isDown.CompareAndSwap(false, true) {
		f.logger.Warn().Err(err).Msg("token store primary down, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *Failover) markUp() {
	if f.isDown.CompareAndSwap(true, false) {
		f.logger.Info().Msg("token store primary recovered")
	}
}

func (f *Failover) Save(ctx context.Context, t *models.FlowToken) error {
	// Always write the fallback so a later redis outage cannot lose
	// in-flight sessions.
	if err := f.fallback.Save(ctx, t); err != nil {
		return err
	}
	if !f.usePrimary() {
		return nil
	}
	if err := f.primary.Save(ctx, t); err != nil {
		f.markDown(err)
		return nil
	}
	f.markUp()
	return nil
}

func (f *Failover) Lookup(ctx context.Context, token string) (*models.FlowToken, error) {
	if f.usePrimary() {
		t, err := f.primary.Lookup(ctx, token)
		if err == nil {
			f.markUp()
			return t, nil
		}
		if !isInfra(err) {
			f.markUp()
			return nil, err
		}
		f.markDown(err)
	}
	return f.fallback.Lookup(ctx, token)
}

func (f *Failover) Purge(ctx context.Context, now time.Time) (int64, error) {
	return f.fallback.Purge(ctx, now)
}
