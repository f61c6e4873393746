package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// ListActiveSlots returns every active catalog slot ordered by sort_order.
func (s *Store) ListActiveSlots(ctx context.Context) ([]models.Slot, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, title, weekday, start_hour, end_hour, price, sort_order, active
		FROM slots WHERE active = 1 ORDER BY sort_order, id`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		var sl models.Slot
		if err := rows.Scan(&sl.ID, &sl.Title, &sl.Weekday, &sl.StartHour,
			&sl.EndHour, &sl.Price, &sl.SortOrder, &sl.Active); err != nil {
			return nil, storageErr(err)
		}
		slots = append(slots, sl)
	}
	return slots, storageErr(rows.Err())
}

// UpsertSlot creates or updates a catalog slot. Operator-only path.
func (s *Store) UpsertSlot(ctx context.Context, sl *models.Slot) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO slots (id, title, weekday, start_hour, end_hour, price, sort_order, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			weekday = excluded.weekday,
			start_hour = excluded.start_hour,
			end_hour = excluded.end_hour,
			price = excluded.price,
			sort_order = excluded.sort_order,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		sl.ID, sl.Title, sl.Weekday, sl.StartHour, sl.EndHour, sl.Price,
		sl.SortOrder, sl.Active, time.Now(),
	)
	return storageErr(err)
}

var dayCodes = [7]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// SeedDefaultSlots populates the hourly 5 AM to 1 AM grid for every weekday
// when the catalog is empty. Prices and titles are operator-editable after
// seeding.
func (s *Store) SeedDefaultSlots(ctx context.Context, price int64) error {
	var count int
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM slots").Scan(&count); err != nil {
		return storageErr(err)
	}
	if count > 0 {
		return nil
	}

	s.logger.Info().Msg("seeding default slot catalog")
	order := int64(0)
	for weekday := 0; weekday < 7; weekday++ {
		for hour := 5; hour <= 24; hour++ {
			sl := &models.Slot{
				ID:        fmt.Sprintf("%s-S%d", dayCodes[weekday], hour),
				Title:     hourRangeTitle(hour),
				Weekday:   weekday,
				StartHour: hour,
				EndHour:   hour + 1,
				Price:     price,
				SortOrder: order,
				Active:    true,
			}
			if err := s.UpsertSlot(ctx, sl); err != nil {
				return err
			}
			order++
		}
	}
	return nil
}

func hourRangeTitle(startHour int) string {
	return fmt.Sprintf("%s - %s", hourLabel(startHour), hourLabel(startHour+1))
}

func hourLabel(hour int) string {
	h := hour % 24
	switch {
	case h == 0:
		return "12 AM"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	case h == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}
