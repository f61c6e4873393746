// Package server exposes the HTTP surface: the WhatsApp webhook, the flow
// data-exchange endpoint, payment callbacks and the operator endpoints.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/flow"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/payment"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/wa"

	"github.com/rs/zerolog"
)

// Lifecycle is the reservation state machine.
type Lifecycle interface {
	RequestSlots(ctx context.Context, token, mobile string, date time.Time, slotIDs []string) (*models.Reservation, error)
	ConfirmPayment(ctx context.Context, result *models.PaymentResult) error
}

// PendingSource resolves pending reservations for the pay redirect.
type PendingSource interface {
	FindPendingReservation(ctx context.Context, token, mobile string) (*models.Reservation, error)
}

// TokenIssuer mints booking-session tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, mobile string) (*models.FlowToken, error)
}

// TokenSource resolves booking-session tokens.
type TokenSource interface {
	Lookup(ctx context.Context, token string) (*models.FlowToken, error)
}

// Messenger sends outbound WhatsApp messages and checks platform payments.
type Messenger interface {
	Send(ctx context.Context, msg *wa.Message) error
	PaymentCaptured(ctx context.Context, referenceID string) (bool, error)
}

// FlowEngine advances the booking flow screens.
type FlowEngine interface {
	Process(ctx context.Context, req *flow.Request) (*flow.Response, error)
}

// Sweeper runs one expiry pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Reporter writes the confirmed-bookings workbook.
type Reporter interface {
	WriteConfirmed(ctx context.Context, from, to time.Time, w io.Writer) error
}

// Server holds the handler dependencies.
type Server struct {
	lifecycle Lifecycle
	pending   PendingSource
	issuer    TokenIssuer
	tokens    TokenSource
	messenger Messenger
	crypto    *flow.Crypto
	flow      FlowEngine
	gateway   payment.Gateway
	sweeper   Sweeper
	reporter  Reporter

	verifyToken string
	flowID      string
	payLinkBase string
	loc         *time.Location
	logger      *zerolog.Logger
}

// Options carries the handler configuration.
type Options struct {
	VerifyToken string
	FlowID      string
	PayLinkBase string
	Location    *time.Location
}

func New(
	lifecycle Lifecycle,
	pending PendingSource,
	issuer TokenIssuer,
	tokens TokenSource,
	messenger Messenger,
	crypto *flow.Crypto,
	flowEngine FlowEngine,
	gateway payment.Gateway,
	sweeper Sweeper,
	reporter Reporter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		lifecycle:   lifecycle,
		pending:     pending,
		issuer:      issuer,
		tokens:      tokens,
		messenger:   messenger,
		crypto:      crypto,
		flow:        flowEngine,
		gateway:     gateway,
		sweeper:     sweeper,
		reporter:    reporter,
		verifyToken: opts.VerifyToken,
		flowID:      opts.FlowID,
		payLinkBase: opts.PayLinkBase,
		loc:         opts.Location,
		logger:      logger,
	}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /api/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/flow", s.handleFlowHealth)
	mux.HandleFunc("POST /api/flow", s.handleFlow)
	mux.HandleFunc("POST /api/payment", s.handlePaymentCallback)
	mux.HandleFunc("POST /api/razorpay/payment", s.handleRazorpayCallback)
	mux.HandleFunc("GET /api/pay", s.handlePayRedirect)
	mux.HandleFunc("POST /api/sweep", s.handleSweep)
	mux.HandleFunc("GET /api/report", s.handleReport)
	return mux
}

// handleWebhookVerify answers the platform subscription handshake.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

func (s *Server) handleFlowHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
