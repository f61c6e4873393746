// Package availability computes per-slot availability for a calendar date.
package availability

import (
	"context"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// Catalog provides the slots bookable on a weekday.
type Catalog interface {
	SlotsForWeekday(weekday int) []models.Slot
}

// ReservationSource provides the slots already held on a date.
type ReservationSource interface {
	ReservedSlots(ctx context.Context, date string) (map[string]*models.Reservation, error)
}

// SlotAvailability is one row of the availability answer, ordered by the
// catalog's sort_order. It feeds the flow-screen renderer directly.
type SlotAvailability struct {
	Slot      models.Slot
	Available bool
}

// Engine is a read-only view over the catalog and the reservation store.
type Engine struct {
	catalog Catalog
	source  ReservationSource
	clock   clock.Clock
	loc     *time.Location
}

// New builds an availability engine for the given timezone.
func New(catalog Catalog, source ReservationSource, clk clock.Clock, loc *time.Location) *Engine {
	return &Engine{catalog: catalog, source: source, clock: clk, loc: loc}
}

// AvailableSlots returns the per-slot availability for a date. A slot is
// available iff it is not held by a live reservation and, for same-day
// requests, its start hour is still ahead of the current hour.
func (e *Engine) AvailableSlots(ctx context.Context, date time.Time) ([]SlotAvailability, error) {
	slots := e.catalog.SlotsForWeekday(models.Weekday(date))
	reserved, err := e.source.ReservedSlots(ctx, models.FormatDate(date))
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().In(e.loc)
	sameDay := sameCalendarDay(now, date)

	out := make([]SlotAvailability, 0, len(slots))
	for _, sl := range slots {
		available := true
		if _, held := reserved[sl.ID]; held {
			available = false
		}
		// Same-day cutoff: slots starting at or before the current hour
		// are gone. A plain cutoff, not a grace window.
		if sameDay && sl.StartHour <= now.Hour() {
			available = false
		}
		out = append(out, SlotAvailability{Slot: sl, Available: available})
	}
	return out, nil
}

// SlotsAvailable reports whether every requested slot is currently
// available on the date. Used as the pre-insert re-check.
func (e *Engine) SlotsAvailable(ctx context.Context, date time.Time, slotIDs []string) (bool, error) {
	all, err := e.AvailableSlots(ctx, date)
	if err != nil {
		return false, err
	}
	byID := make(map[string]bool, len(all))
	for _, sa := range all {
		byID[sa.Slot.ID] = sa.Available
	}
	for _, id := range slotIDs {
		if !byID[id] {
			return false, nil
		}
	}
	return true, nil
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
