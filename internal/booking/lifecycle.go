// Package booking owns the reservation state machine and every invariant
// around it: no double-booking, no lost paid bookings, no confirming a
// cancelled hold.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/events"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/metrics"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// Lifecycle drives reservations through pending, confirmed, cancelled and
// expired. It is the only writer of state transitions.
type Lifecycle struct {
	store        ReservationStore
	catalog      Catalog
	availability Availability
	tokens       TokenStore
	bus          EventPublisher
	clock        clock.Clock
	hold         time.Duration
	loc          *time.Location
	logger       *zerolog.Logger
}

// NewLifecycle wires the state machine. hold is how long a pending
// reservation blocks its slots before the sweep reclaims them.
func NewLifecycle(
	store ReservationStore,
	catalog Catalog,
	avail Availability,
	tokens TokenStore,
	bus EventPublisher,
	clk clock.Clock,
	hold time.Duration,
	loc *time.Location,
	logger *zerolog.Logger,
) *Lifecycle {
	return &Lifecycle{
		store:        store,
		catalog:      catalog,
		availability: avail,
		tokens:       tokens,
		bus:          bus,
		clock:        clk,
		hold:         hold,
		loc:          loc,
		logger:       logger,
	}
}

// RequestSlots validates a slot selection and creates the pending hold.
// The returned reservation feeds payment-link generation downstream.
func (l *Lifecycle) RequestSlots(ctx context.Context, token, mobile string, date time.Time, slotIDs []string) (*models.Reservation, error) {
	ft, err := l.tokens.Lookup(ctx, token)
	if err != nil || ft.Mobile != mobile {
		l.logger.Info().Str("token", token).Str("mobile", mobile).
			Msg("rejecting request with unknown or mismatched token")
		metrics.IncReservationRequested("invalid_token")
		return nil, ErrInvalidOrExpiredToken
	}

	// One booking session per user at a time.
	if _, err := l.store.FindPendingReservation(ctx, "", mobile); err == nil {
		metrics.IncReservationRequested("conflicting_pending")
		return nil, ErrConflictingPendingReservation
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	slotIDs = dedupe(slotIDs)
	if len(slotIDs) == 0 {
		return nil, fmt.Errorf("%w: no slots selected", ErrSlotUnavailable)
	}
	weekday := models.Weekday(date)
	for _, id := range slotIDs {
		sl, err := l.catalog.Slot(id)
		if err != nil {
			return nil, err
		}
		if sl.Weekday != weekday {
			return nil, fmt.Errorf("%w: slot %s is not offered on %s",
				ErrSlotUnavailable, id, date.Weekday())
		}
	}

	// Re-check availability right before the insert. The store's unique
	// index still backstops the remaining window.
	free, err := l.availability.SlotsAvailable(ctx, date, slotIDs)
	if err != nil {
		return nil, err
	}
	if !free {
		metrics.IncReservationRequested("slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	amount, err := l.catalog.Amount(slotIDs)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().In(l.loc)
	r := &models.Reservation{
		Token:     token,
		Mobile:    mobile,
		Date:      models.FormatDate(date),
		SlotIDs:   slotIDs,
		Amount:    amount,
		State:     models.StatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(l.hold),
	}
	if err := l.store.CreatePendingReservation(ctx, r); err != nil {
		if IsValidation(err) {
			metrics.IncReservationRequested("slot_unavailable")
		}
		return nil, err
	}

	metrics.IncReservationRequested("created")
	l.logger.Info().Str("token", token).Str("mobile", mobile).
		Str("date", r.Date).Strs("slots", slotIDs).Int64("amount", amount).
		Msg("pending reservation created")
	_ = l.bus.PublishJSON(events.TypeReservationCreated, ReservationEvent{
		Token: token, Mobile: mobile, Date: r.Date, SlotIDs: slotIDs, Amount: amount,
	})
	return r, nil
}

// ConfirmPayment applies a payment result to the reservation identified by
// its reference id. Providers retry aggressively, so a missing or
// already-confirmed reservation is a logged no-op, never an error back to
// the provider.
func (l *Lifecycle) ConfirmPayment(ctx context.Context, result *models.PaymentResult) error {
	token := result.ReferenceID

	pending, err := l.store.FindPendingReservation(ctx, token, "")
	if errors.Is(err, ErrNotFound) {
		return l.handleMissingPending(ctx, token, result)
	}
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		l.logger.Info().Str("token", token).Str("status", string(result.Status)).
			Msg("payment did not complete, leaving hold to expire")
		_ = l.bus.PublishJSON(events.TypePaymentFailed, ReservationEvent{
			Token: token, Mobile: pending.Mobile, Date: pending.Date,
		})
		return nil
	}

	if result.AmountRupees() != pending.Amount {
		// The amount was fixed at creation; a mismatch means provider
		// drift, not a reason to recompute.
		l.logger.Warn().Str("token", token).
			Int64("reserved", pending.Amount).
			Int64("paid", result.AmountRupees()).
			Msg("paid amount differs from reserved amount")
	}

	// Final double-booking guard: reject if any slot was confirmed by a
	// different reservation in the interim.
	reserved, err := l.store.ReservedSlots(ctx, pending.Date)
	if err != nil {
		return err
	}
	for _, slotID := range pending.SlotIDs {
		holder, held := reserved[slotID]
		if held && holder.Token != token && holder.State == models.StateConfirmed {
			l.logger.Error().Str("token", token).Str("slot", slotID).
				Str("winner", holder.Token).
				Msg("paid reservation lost the slot race, flagging for manual refund")
			metrics.IncRefundFlagged()
			_ = l.bus.PublishJSON(events.TypeReservationRejected, ReservationEvent{
				Token: token, Mobile: pending.Mobile, Date: pending.Date,
				SlotIDs: pending.SlotIDs, Amount: pending.Amount,
				Reason: "slot confirmed by another booking",
			})
			return ErrSlotUnavailable
		}
	}

	if err := l.store.ConfirmReservation(ctx, token, result.ReferenceID, result.RawPayload); err != nil {
		return err
	}

	metrics.IncReservationConfirmed()
	l.logger.Info().Str("token", token).Str("mobile", pending.Mobile).
		Str("date", pending.Date).Msg("reservation confirmed")
	_ = l.bus.PublishJSON(events.TypeReservationConfirmed, ReservationEvent{
		Token: token, Mobile: pending.Mobile, Date: pending.Date,
		SlotIDs: pending.SlotIDs, Amount: pending.Amount,
	})
	return nil
}

// handleMissingPending decides what a payment event without a pending hold
// means: a provider retry for an already-confirmed booking (idempotent
// no-op) or a stale notification (logged no-op).
func (l *Lifecycle) handleMissingPending(ctx context.Context, token string, result *models.PaymentResult) error {
	existing, err := l.store.GetReservation(ctx, token)
	if err == nil && existing.State == models.StateConfirmed &&
		existing.PaymentReference == result.ReferenceID {
		l.logger.Info().Str("token", token).Msg("duplicate payment notification, already confirmed")
		return nil
	}
	l.logger.Warn().Str("token", token).Str("status", string(result.Status)).
		Msg("payment notification without pending reservation, ignoring")
	return nil
}

// Cancel is the manual operator path for a confirmed reservation.
func (l *Lifecycle) Cancel(ctx context.Context, token string) error {
	r, err := l.store.GetReservation(ctx, token)
	if err != nil {
		return err
	}
	if err := l.store.CancelReservation(ctx, token); err != nil {
		return err
	}
	metrics.IncReservationCancelled()
	l.logger.Info().Str("token", token).Str("mobile", r.Mobile).Msg("reservation cancelled")
	_ = l.bus.PublishJSON(events.TypeReservationCancelled, ReservationEvent{
		Token: token, Mobile: r.Mobile, Date: r.Date, SlotIDs: r.SlotIDs, Amount: r.Amount,
	})
	return nil
}

// SweepExpired reclaims every pending hold past its deadline. Invoked by
// the scheduled trigger, never self-scheduled here.
func (l *Lifecycle) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := l.store.ExpireStaleReservations(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.AddReservationsExpired(float64(count))
		l.logger.Info().Int64("count", count).Msg("expired stale reservations")
	}
	return count, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
