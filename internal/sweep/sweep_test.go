package sweep

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLifecycle struct {
	calls   atomic.Int32
	expired int64
	err     error
}

func (c *countingLifecycle) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	return c.expired, c.err
}

type countingPurger struct {
	calls  atomic.Int32
	purged int64
	err    error
}

func (c *countingPurger) Purge(ctx context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	return c.purged, c.err
}

var testLogger = zerolog.New(io.Discard)

func TestRunOnce(t *testing.T) {
	lc := &countingLifecycle{expired: 2}
	purger := &countingPurger{purged: 1}
	s := New(lc, purger, clock.NewSystem(), time.Minute, &testLogger)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int32(1), lc.calls.Load())
	assert.Equal(t, int32(1), purger.calls.Load())
}

func TestRunOnceSweepError(t *testing.T) {
	lc := &countingLifecycle{err: errors.New("db locked")}
	purger := &countingPurger{}
	s := New(lc, purger, clock.NewSystem(), time.Minute, &testLogger)

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(0), purger.calls.Load())
}

func TestRunOncePurgeErrorNotFatal(t *testing.T) {
	lc := &countingLifecycle{expired: 1}
	purger := &countingPurger{err: errors.New("redis down")}
	s := New(lc, purger, clock.NewSystem(), time.Minute, &testLogger)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStartSweepsImmediatelyAndStops(t *testing.T) {
	lc := &countingLifecycle{}
	purger := &countingPurger{}
	s := New(lc, purger, clock.NewSystem(), time.Hour, &testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// The first pass runs before the first tick.
	assert.Eventually(t, func() bool { return lc.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
