// Package notify turns reservation lifecycle events into WhatsApp
// messages. Every outcome reaches the user as a chat message; a stuck
// booking with no reply is treated as a bug.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/events"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/wa"

	"github.com/rs/zerolog"
)

const operatorTemplate = "new_booking_notification"

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg *wa.Message) error
}

// Catalog resolves slot ids to display titles.
type Catalog interface {
	Slot(id string) (models.Slot, error)
}

// Notifier subscribes to the event bus and fans lifecycle outcomes out to
// the booking user and, on confirmation, to the operator numbers.
type Notifier struct {
	sender    Sender
	catalog   Catalog
	operators []string
	logger    *zerolog.Logger
}

func New(sender Sender, catalog Catalog, operators []string, logger *zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, catalog: catalog, operators: operators, logger: logger}
}

// Register wires the notifier to every lifecycle event type.
func (n *Notifier) Register(bus *events.Bus) {
	bus.Subscribe(events.TypeReservationConfirmed, n.onConfirmed)
	bus.Subscribe(events.TypeReservationRejected, n.onRejected)
	bus.Subscribe(events.TypeReservationCancelled, n.onCancelled)
	bus.Subscribe(events.TypePaymentFailed, n.onPaymentFailed)
}

func (n *Notifier) onConfirmed(event events.Event) error {
	var ev booking.ReservationEvent
	if err := event.Decode(&ev); err != nil {
		return err
	}
	ctx := context.Background()

	body := fmt.Sprintf(`Awesome, your booking is confirmed!!!

*Date:* %s
*Slots:* %s
*Amount paid:* ₹ %d

_Enjoy the game!_`, ev.Date, n.slotTitles(ev.SlotIDs), ev.Amount)
	n.send(ctx, wa.NewTextMessage(ev.Mobile, body))

	for _, operator := range n.operators {
		n.send(ctx, wa.NewTemplateMessage(operator, operatorTemplate,
			ev.Date, n.slotTitles(ev.SlotIDs), "+"+ev.Mobile, fmt.Sprintf("%d", ev.Amount)))
	}
	return nil
}

func (n *Notifier) onRejected(event events.Event) error {
	var ev booking.ReservationEvent
	if err := event.Decode(&ev); err != nil {
		return err
	}
	body := fmt.Sprintf(`Sorry, the slot you paid for on %s was booked by someone else moments before your payment completed.

Your payment will be refunded. Please start a new booking for another slot.`, ev.Date)
	n.send(context.Background(), wa.NewTextMessage(ev.Mobile, body))
	return nil
}

func (n *Notifier) onCancelled(event events.Event) error {
	var ev booking.ReservationEvent
	if err := event.Decode(&ev); err != nil {
		return err
	}
	body := fmt.Sprintf(`Your booking for %s (%s) has been cancelled.

Please contact us if this is unexpected.`, ev.Date, n.slotTitles(ev.SlotIDs))
	n.send(context.Background(), wa.NewTextMessage(ev.Mobile, body))
	return nil
}

func (n *Notifier) onPaymentFailed(event events.Event) error {
	var ev booking.ReservationEvent
	if err := event.Decode(&ev); err != nil {
		return err
	}
	body := "Your payment did not complete. Please start a new booking."
	n.send(context.Background(), wa.NewTextMessage(ev.Mobile, body))
	return nil
}

func (n *Notifier) slotTitles(slotIDs []string) string {
	titles := make([]string, 0, len(slotIDs))
	for _, id := range slotIDs {
		sl, err := n.catalog.Slot(id)
		if err != nil {
			titles = append(titles, id)
			continue
		}
		titles = append(titles, sl.Title)
	}
	return strings.Join(titles, ", ")
}

func (n *Notifier) send(ctx context.Context, msg *wa.Message) {
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error().Err(err).Str("to", msg.To).Msg("notification send failed")
	}
}
