package models

import (
	"time"
)

// DateFormat is the canonical calendar-date representation used across the
// store, flow screens and chat messages (e.g. "13 Jan 2024").
const DateFormat = "02 Jan 2006"

// ReservationState is the lifecycle state of a reservation.
type ReservationState string

const (
	StatePending   ReservationState = "pending"
	StateConfirmed ReservationState = "confirmed"
	StateCancelled ReservationState = "cancelled"
	StateExpired   ReservationState = "expired"
)

// validTransitions enumerates every allowed state change. Creation is the
// only way to reach pending; confirmed, cancelled and expired are terminal
// except for the explicit confirmed -> cancelled operator action.
var validTransitions = map[ReservationState][]ReservationState{
	StatePending:   {StateConfirmed, StateExpired},
	StateConfirmed: {StateCancelled},
	StateCancelled: {},
	StateExpired:   {},
}

// CanTransitionTo reports whether the state change is allowed.
func (s ReservationState) CanTransitionTo(to ReservationState) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsLive reports whether reservations in this state block their slots.
func (s ReservationState) IsLive() bool {
	return s == StatePending || s == StateConfirmed
}

// Reservation is a hold (pending) or confirmed booking of one or more slots
// on a specific date for a specific mobile number.
type Reservation struct {
	Token            string           `json:"token"`
	Mobile           string           `json:"mobile"`
	Date             string           `json:"date"` // DateFormat
	SlotIDs          []string         `json:"slot_ids"`
	Amount           int64            `json:"amount"` // rupees, fixed at creation
	State            ReservationState `json:"state"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at,omitempty"`         // pending only
	PaymentReference string           `json:"payment_reference,omitempty"` // confirmed only
	PaymentPayload   string           `json:"payment_payload,omitempty"`
}

// IsExpired reports whether a pending reservation's hold has lapsed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.State == StatePending && r.ExpiresAt.Before(now)
}

// HasSlot reports whether the reservation holds the given slot.
func (r *Reservation) HasSlot(slotID string) bool {
	for _, id := range r.SlotIDs {
		if id == slotID {
			return true
		}
	}
	return false
}

// ParseDate parses a calendar date in the canonical format.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, loc)
}

// FormatDate renders a calendar date in the canonical format.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// Weekday maps a date to the catalog weekday convention (0 = Monday).
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
