package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/flow"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/metrics"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/wa"
)

// handleWebhook dispatches inbound messages. The platform retries on
// non-2xx, so processing failures are logged and answered 200; only the
// user-facing chat reply reports them.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload wa.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := payload.FirstMessage()
	if msg == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	switch {
	case msg.Type == "payment" && msg.Payment != nil:
		s.processPaymentStatus(ctx, msg)
	case msg.IsFlowReply():
		s.processFlowReply(ctx, msg)
	default:
		s.processConversationStart(ctx, msg)
	}
	w.WriteHeader(http.StatusOK)
}

// processConversationStart begins a booking session: a fresh token and the
// flow launch message.
func (s *Server) processConversationStart(ctx context.Context, msg *wa.InboundMessage) {
	token, err := s.issuer.Issue(ctx, msg.From)
	if err != nil {
		s.logger.Error().Err(err).Str("mobile", msg.From).Msg("token issue failed")
		s.reply(ctx, msg.From, "Some error has occurred while processing your request. Please try again.")
		return
	}
	launch := wa.NewFlowMessage(msg.From,
		"Welcome to Challenge Box Cricket! Tap below to book your slot.",
		s.flowID, token.Token, flow.ScreenDateSelection)
	if err := s.messenger.Send(ctx, launch); err != nil {
		s.logger.Error().Err(err).Str("mobile", msg.From).Msg("flow launch send failed")
	}
}

// flowSubmission is the payload the final flow screen posts back through
// the message webhook.
type flowSubmission struct {
	SelectedDate string `json:"selected_date"`
	Slots        string `json:"slots"`
	Amount       string `json:"amount"`
	Token        string `json:"token"`
}

// processFlowReply creates the pending reservation from the completed flow
// and sends the payment link. Every failure path answers the user.
func (s *Server) processFlowReply(ctx context.Context, msg *wa.InboundMessage) {
	var sub flowSubmission
	if err := json.Unmarshal([]byte(msg.Interactive.NFMReply.ResponseJSON), &sub); err != nil {
		s.logger.Warn().Err(err).Str("mobile", msg.From).Msg("undecodable flow reply")
		s.reply(ctx, msg.From, "Some error has occurred while processing your request. Please start a new booking.")
		return
	}

	date, err := models.ParseDate(sub.SelectedDate, s.loc)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", sub.SelectedDate).Msg("flow reply with bad date")
		s.reply(ctx, msg.From, "Some error has occurred while processing your request. Please start a new booking.")
		return
	}
	slotIDs := splitSlots(sub.Slots)

	reservation, err := s.lifecycle.RequestSlots(ctx, sub.Token, msg.From, date, slotIDs)
	switch {
	case err == nil:
		link := fmt.Sprintf("%s?tx=%s", s.payLinkBase, reservation.Token)
		body := fmt.Sprintf(`Your slots are held for 10 minutes.

*Date:* %s
*Amount:* ₹ %d

Complete the payment to confirm your booking:
%s`, reservation.Date, reservation.Amount, link)
		s.reply(ctx, msg.From, body)
	case errors.Is(err, booking.ErrInvalidOrExpiredToken):
		s.reply(ctx, msg.From, "Your booking session has expired. Please start a new booking.")
	case errors.Is(err, booking.ErrConflictingPendingReservation):
		s.reply(ctx, msg.From, "You already have a booking awaiting payment. Complete or wait for it to expire before starting another.")
	case booking.IsValidation(err):
		s.reply(ctx, msg.From, "Sorry, the selected slots are no longer available. Please start a new booking.")
	default:
		s.logger.Error().Err(err).Str("mobile", msg.From).Msg("reservation request failed")
		s.reply(ctx, msg.From, "Some error has occurred while processing your request. Please try again.")
	}
}

// processPaymentStatus handles the platform payment notification. The
// status is cross-checked against the payments API before confirming.
func (s *Server) processPaymentStatus(ctx context.Context, msg *wa.InboundMessage) {
	p := msg.Payment
	metrics.IncPaymentCallback("whatsapp", p.Status)
	if !strings.EqualFold(p.Status, "captured") {
		s.logger.Info().Str("reference", p.ReferenceID).Str("status", p.Status).
			Msg("ignoring non-captured payment notification")
		return
	}

	captured, err := s.messenger.PaymentCaptured(ctx, p.ReferenceID)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", p.ReferenceID).Msg("payment status cross-check failed")
		return
	}
	if !captured {
		s.logger.Error().Str("reference", p.ReferenceID).
			Msg("payment notification not backed by a captured payment")
		return
	}

	offset := p.Amount.Offset
	if offset <= 0 {
		offset = 100
	}
	result := &models.PaymentResult{
		Status:      models.PaymentSuccess,
		ReferenceID: p.ReferenceID,
		Amount:      p.Amount.Value * 100 / offset,
		Currency:    p.Currency,
		RawPayload:  marshal(p),
	}
	if err := s.lifecycle.ConfirmPayment(ctx, result); err != nil {
		s.logger.Error().Err(err).Str("reference", p.ReferenceID).Msg("payment confirmation failed")
	}
}

func (s *Server) reply(ctx context.Context, mobile, body string) {
	if err := s.messenger.Send(ctx, wa.NewTextMessage(mobile, body)); err != nil {
		s.logger.Error().Err(err).Str("mobile", mobile).Msg("reply send failed")
	}
}

func splitSlots(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func marshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
