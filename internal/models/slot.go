package models

import "fmt"

// Slot represents a bookable time interval recurring weekly.
type Slot struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Weekday   int    `json:"weekday"` // 0 = Monday .. 6 = Sunday
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Price     int64  `json:"price"` // rupees
	SortOrder int64  `json:"sort_order"`
	Active    bool   `json:"active"`
}

// PriceLabel formats the slot price for display in flow screens.
func (s *Slot) PriceLabel() string {
	return fmt.Sprintf("₹ %d", s.Price)
}
