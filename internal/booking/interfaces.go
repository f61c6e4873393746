package booking

import (
	"context"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// ReservationStore is the persistence the lifecycle drives. Implemented by
// the sqlite store.
type ReservationStore interface {
	ReservedSlots(ctx context.Context, date string) (map[string]*models.Reservation, error)
	CreatePendingReservation(ctx context.Context, r *models.Reservation) error
	FindPendingReservation(ctx context.Context, token, mobile string) (*models.Reservation, error)
	GetReservation(ctx context.Context, token string) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, token, paymentRef, payload string) error
	CancelReservation(ctx context.Context, token string) error
	ExpireStaleReservations(ctx context.Context, now time.Time) (int64, error)
}

// Catalog resolves slot ids and prices.
type Catalog interface {
	Slot(id string) (models.Slot, error)
	Amount(slotIDs []string) (int64, error)
}

// Availability answers whether slots are free on a date.
type Availability interface {
	SlotsAvailable(ctx context.Context, date time.Time, slotIDs []string) (bool, error)
}

// TokenStore authenticates booking-session tokens.
type TokenStore interface {
	Lookup(ctx context.Context, token string) (*models.FlowToken, error)
}

// EventPublisher receives lifecycle events for notification fan-out.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ReservationEvent is the payload published on lifecycle transitions.
type ReservationEvent struct {
	Token   string   `json:"token"`
	Mobile  string   `json:"mobile"`
	Date    string   `json:"date"`
	SlotIDs []string `json:"slot_ids"`
	Amount  int64    `json:"amount"`
	Reason  string   `json:"reason,omitempty"`
}
