// Package catalog holds the in-memory slot catalog, read-only to the rest
// of the service.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// SlotSource loads catalog rows from storage.
type SlotSource interface {
	ListActiveSlots(ctx context.Context) ([]models.Slot, error)
}

// Catalog caches active slots, grouped by weekday. Loaded once at startup
// and refreshed only on an explicit Reload.
type Catalog struct {
	source SlotSource
	logger *zerolog.Logger

	mu        sync.RWMutex
	byID      map[string]models.Slot
	byWeekday map[int][]models.Slot
}

// New builds a catalog and performs the initial load.
func New(ctx context.Context, source SlotSource, logger *zerolog.Logger) (*Catalog, error) {
	c := &Catalog{source: source, logger: logger}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the cached catalog with the current storage contents.
func (c *Catalog) Reload(ctx context.Context) error {
	slots, err := c.source.ListActiveSlots(ctx)
	if err != nil {
		return fmt.Errorf("load slot catalog: %w", err)
	}

	byID := make(map[string]models.Slot, len(slots))
	byWeekday := make(map[int][]models.Slot)
	for _, sl := range slots {
		byID[sl.ID] = sl
		byWeekday[sl.Weekday] = append(byWeekday[sl.Weekday], sl)
	}
	for day := range byWeekday {
		day := day
		sort.SliceStable(byWeekday[day], func(i, j int) bool {
			return byWeekday[day][i].SortOrder < byWeekday[day][j].SortOrder
		})
	}

	c.mu.Lock()
	c.byID = byID
	c.byWeekday = byWeekday
	c.mu.Unlock()

	c.logger.Info().Int("slots", len(slots)).Msg("slot catalog loaded")
	return nil
}

// Slot returns the catalog entry for id.
func (c *Catalog) Slot(id string) (models.Slot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sl, ok := c.byID[id]
	if !ok {
		return models.Slot{}, fmt.Errorf("%w: slot %q", booking.ErrNotFound, id)
	}
	return sl, nil
}

// SlotsForWeekday returns the slots bookable on the given weekday
// (0 = Monday), ordered by sort_order.
func (c *Catalog) SlotsForWeekday(weekday int) []models.Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slots := c.byWeekday[weekday]
	out := make([]models.Slot, len(slots))
	copy(out, slots)
	return out
}

// Amount sums current catalog prices for the given slot ids. Fails on the
// first unknown id rather than defaulting.
func (c *Catalog) Amount(slotIDs []string) (int64, error) {
	var total int64
	for _, id := range slotIDs {
		sl, err := c.Slot(id)
		if err != nil {
			return 0, err
		}
		total += sl.Price
	}
	return total, nil
}
