package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
)

// ReservedSlots returns, for a date, every slot held by a pending or
// confirmed reservation, mapped to the holding reservation.
func (s *Store) ReservedSlots(ctx context.Context, date string) (map[string]*models.Reservation, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT rs.slot_id, r.token, r.mobile, r.date, r.amount, r.state,
		       r.created_at, r.expires_at, r.payment_reference
		FROM reservation_slots rs
		JOIN reservations r ON r.token = rs.reservation_token
		WHERE rs.date = ? AND r.state IN (?, ?)`,
		date, models.StatePending, models.StateConfirmed,
	)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	byToken := make(map[string]*models.Reservation)
	reserved := make(map[string]*models.Reservation)
	for rows.Next() {
		var slotID, token string
		var r models.Reservation
		var expiresAt sql.NullTime
		var paymentRef sql.NullString
		if err := rows.Scan(&slotID, &token, &r.Mobile, &r.Date, &r.Amount,
			&r.State, &r.CreatedAt, &expiresAt, &paymentRef); err != nil {
			return nil, storageErr(err)
		}
		res, ok := byToken[token]
		if !ok {
			r.Token = token
			if expiresAt.Valid {
				r.ExpiresAt = expiresAt.Time
			}
			if paymentRef.Valid {
				r.PaymentReference = paymentRef.String
			}
			res = &r
			byToken[token] = res
		}
		res.SlotIDs = append(res.SlotIDs, slotID)
		reserved[slotID] = res
	}
	return reserved, storageErr(rows.Err())
}

// CreatePendingReservation inserts a pending reservation and its slot rows
// in one transaction. The partial unique index on (date, slot_id) makes the
// insert fail if any requested slot is already held by a live reservation,
// which closes the check-then-act window at the storage layer.
func (s *Store) CreatePendingReservation(ctx context.Context, r *models.Reservation) error {
	if len(r.SlotIDs) == 0 {
		return fmt.Errorf("%w: reservation has no slots", booking.ErrSlotUnavailable)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservations
				(token, mobile, date, amount, state, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Token, r.Mobile, r.Date, r.Amount, models.StatePending,
			r.CreatedAt, r.ExpiresAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Same token submitted twice: reject, no new record.
				return booking.ErrConflictingPendingReservation
			}
			return storageErr(err)
		}

		for _, slotID := range r.SlotIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO reservation_slots (reservation_token, date, slot_id, live)
				VALUES (?, ?, ?, 1)`,
				r.Token, r.Date, slotID,
			)
			if err != nil {
				if isUniqueViolation(err) {
					s.logger.Info().
						Str("token", r.Token).
						Str("date", r.Date).
						Str("slot", slotID).
						Msg("slot taken by concurrent reservation")
					return booking.ErrSlotUnavailable
				}
				return storageErr(err)
			}
		}
		return nil
	})
}

// FindPendingReservation returns the pending reservation matching token
// and/or mobile. At least one filter is required. More than one pending
// reservation per mobile violates an invariant; it is logged as a
// data-integrity warning and resolved by returning the most recent record.
func (s *Store) FindPendingReservation(ctx context.Context, token, mobile string) (*models.Reservation, error) {
	if token == "" && mobile == "" {
		return nil, fmt.Errorf("%w: token or mobile filter required", booking.ErrNotFound)
	}

	query := `SELECT token, mobile, date, amount, state, created_at, expires_at
		FROM reservations WHERE state = ?`
	args := []interface{}{models.StatePending}
	if token != "" {
		query += " AND token = ?"
		args = append(args, token)
	}
	if mobile != "" {
		query += " AND mobile = ?"
		args = append(args, mobile)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var found []*models.Reservation
	for rows.Next() {
		var r models.Reservation
		var expiresAt sql.NullTime
		if err := rows.Scan(&r.Token, &r.Mobile, &r.Date, &r.Amount, &r.State,
			&r.CreatedAt, &expiresAt); err != nil {
			return nil, storageErr(err)
		}
		if expiresAt.Valid {
			r.ExpiresAt = expiresAt.Time
		}
		found = append(found, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	if len(found) == 0 {
		return nil, booking.ErrNotFound
	}
	if len(found) > 1 {
		s.logger.Warn().
			Str("mobile", mobile).
			Int("count", len(found)).
			Msg("data integrity: multiple pending reservations, using most recent")
	}

	r := found[0]
	if err := s.loadSlotIDs(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) loadSlotIDs(ctx context.Context, r *models.Reservation) error {
	rows, err := s.QueryContext(ctx,
		"SELECT slot_id FROM reservation_slots WHERE reservation_token = ?",
		r.Token,
	)
	if err != nil {
		return storageErr(err)
	}
	defer rows.Close()

	r.SlotIDs = nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return storageErr(err)
		}
		r.SlotIDs = append(r.SlotIDs, id)
	}
	return storageErr(rows.Err())
}

// ConfirmReservation transitions a pending reservation to confirmed.
// Calling it twice with the same payment reference is a no-op; a second call
// with a different reference is reported as ambiguous state.
func (s *Store) ConfirmReservation(ctx context.Context, token, paymentRef, payload string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var state models.ReservationState
		var existingRef sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT state, payment_reference FROM reservations WHERE token = ?",
			token,
		).Scan(&state, &existingRef)
		if err == sql.ErrNoRows {
			return booking.ErrNotFound
		}
		if err != nil {
			return storageErr(err)
		}

		switch state {
		case models.StateConfirmed:
			if existingRef.Valid && existingRef.String == paymentRef {
				return nil // idempotent retry from the provider
			}
			s.logger.Warn().
				Str("token", token).
				Str("existing_ref", existingRef.String).
				Str("new_ref", paymentRef).
				Msg("confirm with different payment reference")
			return booking.ErrAmbiguousState
		case models.StatePending:
			// fall through to the update below
		default:
			// Expired or cancelled holds cannot be confirmed.
			return booking.ErrNotFound
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE reservations
			SET state = ?, payment_reference = ?, payment_payload = ?, expires_at = NULL
			WHERE token = ? AND state = ?`,
			models.StateConfirmed, paymentRef, payload, token, models.StatePending,
		)
		if err != nil {
			return storageErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr(err)
		}
		if n == 0 {
			// Lost a race with the expiry sweep inside this transaction
			// window; the slots are free again and the payment needs
			// manual attention upstream.
			return booking.ErrNotFound
		}
		return nil
	})
}

// CancelReservation transitions a confirmed reservation to cancelled and
// frees its slots. Cancelling an already-cancelled reservation is a no-op.
func (s *Store) CancelReservation(ctx context.Context, token string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var state models.ReservationState
		err := tx.QueryRowContext(ctx,
			"SELECT state FROM reservations WHERE token = ?", token,
		).Scan(&state)
		if err == sql.ErrNoRows {
			return booking.ErrNotFound
		}
		if err != nil {
			return storageErr(err)
		}

		if state == models.StateCancelled {
			return nil
		}
		if state != models.StateConfirmed {
			return booking.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE reservations SET state = ? WHERE token = ?",
			models.StateCancelled, token,
		); err != nil {
			return storageErr(err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE reservation_slots SET live = 0 WHERE reservation_token = ?",
			token,
		); err != nil {
			return storageErr(err)
		}
		return nil
	})
}

// ExpireStaleReservations marks every pending reservation past its deadline
// as expired and frees its slots, in one batch. Rows are kept for history
// rather than deleted.
func (s *Store) ExpireStaleReservations(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT token, mobile FROM reservations WHERE state = ? AND expires_at < ?",
			models.StatePending, now,
		)
		if err != nil {
			return storageErr(err)
		}
		type stale struct{ token, mobile string }
		var expired []stale
		for rows.Next() {
			var e stale
			if err := rows.Scan(&e.token, &e.mobile); err != nil {
				rows.Close()
				return storageErr(err)
			}
			expired = append(expired, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr(err)
		}

		for _, e := range expired {
			s.logger.Info().
				Str("token", e.token).
				Str("mobile", e.mobile).
				Msg("expiring stale pending reservation")
			if _, err := tx.ExecContext(ctx,
				"UPDATE reservations SET state = ? WHERE token = ? AND state = ?",
				models.StateExpired, e.token, models.StatePending,
			); err != nil {
				return storageErr(err)
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE reservation_slots SET live = 0 WHERE reservation_token = ?",
				e.token,
			); err != nil {
				return storageErr(err)
			}
			count++
		}
		return nil
	})
	return count, err
}

// GetReservation returns a reservation in any state by token.
func (s *Store) GetReservation(ctx context.Context, token string) (*models.Reservation, error) {
	var r models.Reservation
	var expiresAt sql.NullTime
	var paymentRef, payload sql.NullString
	err := s.QueryRowContext(ctx, `
		SELECT token, mobile, date, amount, state, created_at, expires_at,
		       payment_reference, payment_payload
		FROM reservations WHERE token = ?`, token,
	).Scan(&r.Token, &r.Mobile, &r.Date, &r.Amount, &r.State, &r.CreatedAt,
		&expiresAt, &paymentRef, &payload)
	if err == sql.ErrNoRows {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if expiresAt.Valid {
		r.ExpiresAt = expiresAt.Time
	}
	if paymentRef.Valid {
		r.PaymentReference = paymentRef.String
	}
	if payload.Valid {
		r.PaymentPayload = payload.String
	}
	if err := s.loadSlotIDs(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ConfirmedReservations returns confirmed reservations in a date range,
// ordered by creation time. Used by the operator report.
func (s *Store) ConfirmedReservations(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT token, mobile, date, amount, state, created_at, payment_reference
		FROM reservations
		WHERE state = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at`,
		models.StateConfirmed, from, to,
	)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var r models.Reservation
		var paymentRef sql.NullString
		if err := rows.Scan(&r.Token, &r.Mobile, &r.Date, &r.Amount, &r.State,
			&r.CreatedAt, &paymentRef); err != nil {
			return nil, storageErr(err)
		}
		if paymentRef.Valid {
			r.PaymentReference = paymentRef.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	for i := range out {
		if err := s.loadSlotIDs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
