package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationRequested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "reservation_requested_total",
			Help:      "Count of slot reservation requests by outcome.",
		},
		[]string{"outcome"},
	)

	reservationConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "reservation_confirmed_total",
			Help:      "Count of reservations confirmed after payment.",
		},
	)

	reservationExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "reservation_expired_total",
			Help:      "Count of pending reservations removed by the expiry sweep.",
		},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "reservation_cancelled_total",
			Help:      "Count of confirmed reservations cancelled by operators.",
		},
	)

	refundFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "refund_flagged_total",
			Help:      "Count of paid reservations rejected at confirmation and flagged for manual refund.",
		},
	)

	paymentCallback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "payment_callback_total",
			Help:      "Count of payment provider callbacks by provider and status.",
		},
		[]string{"provider", "status"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cbc",
			Name:      "messages_sent_total",
			Help:      "Count of outbound WhatsApp messages by type.",
		},
		[]string{"type"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationRequested, reservationConfirmed, reservationExpired,
			reservationCancelled, refundFlagged, paymentCallback, messagesSent,
		)
	})
}

func IncReservationRequested(outcome string) {
	reservationRequested.WithLabelValues(outcome).Inc()
}

func IncReservationConfirmed() {
	reservationConfirmed.Inc()
}

func AddReservationsExpired(n float64) {
	reservationExpired.Add(n)
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func IncRefundFlagged() {
	refundFlagged.Inc()
}

func IncPaymentCallback(provider, status string) {
	paymentCallback.WithLabelValues(provider, status).Inc()
}

func IncMessageSent(messageType string) {
	messagesSent.WithLabelValues(messageType).Inc()
}
