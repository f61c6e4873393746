package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/flow"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/metrics"
)

// handleFlow is the encrypted data-exchange endpoint. The response is the
// base64 ciphertext with no JSON wrapper, as the flow runtime expects.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	var env flow.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	data, key, iv, err := s.crypto.Decrypt(&env)
	if err != nil {
		s.logger.Warn().Err(err).Msg("flow envelope decryption failed")
		// 421 tells the platform to refresh its public key.
		w.WriteHeader(http.StatusMisdirectedRequest)
		return
	}

	var req flow.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable flow request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, err := s.flow.Process(r.Context(), &req)
	if err != nil {
		s.logger.Error().Err(err).Str("screen", req.Screen).Msg("flow processing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	plaintext, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	encrypted, err := s.crypto.Encrypt(plaintext, key, iv)
	if err != nil {
		s.logger.Error().Err(err).Msg("flow response encryption failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, encrypted)
}

// handlePaymentCallback is the provider server-to-server callback
// (PhonePe X-VERIFY signed).
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	s.processProviderCallback(w, r, r.Header.Get("X-VERIFY"))
}

// handleRazorpayCallback is the Razorpay webhook variant.
func (s *Server) handleRazorpayCallback(w http.ResponseWriter, r *http.Request) {
	s.processProviderCallback(w, r, r.Header.Get("X-Razorpay-Signature"))
}

func (s *Server) processProviderCallback(w http.ResponseWriter, r *http.Request, signature string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	result, err := s.gateway.ValidateCallback(signature, body)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", s.gateway.Name()).Msg("payment callback rejected")
		metrics.IncPaymentCallback(s.gateway.Name(), "invalid")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	metrics.IncPaymentCallback(s.gateway.Name(), string(result.Status))

	if err := s.lifecycle.ConfirmPayment(r.Context(), result); err != nil {
		// Providers retry on failure; losing slot races must not loop.
		s.logger.Error().Err(err).Str("reference", result.ReferenceID).
			Msg("payment confirmation failed")
	}
	w.WriteHeader(http.StatusOK)
}

// handlePayRedirect turns the chat pay link into the provider checkout.
// The link dies with its reservation: expired holds get a fresh-booking
// prompt instead of a redirect.
func (s *Server) handlePayRedirect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("tx")
	if token == "" {
		http.Error(w, "missing transaction", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	// Expire overdue holds first so a dead link cannot resurrect one.
	if _, err := s.sweeper.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("pre-redirect sweep failed")
	}

	if _, err := s.tokens.Lookup(ctx, token); err != nil {
		http.Error(w, "Invalid transaction token", http.StatusInternalServerError)
		return
	}
	reservation, err := s.pending.FindPendingReservation(ctx, token, "")
	if errors.Is(err, booking.ErrNotFound) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "<h1>This payment link is expired. Please start new booking from WhatsApp.</h1>")
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	url, err := s.gateway.GeneratePaymentLink(ctx, reservation.Amount, token)
	if err != nil {
		s.logger.Error().Err(err).Str("token", token).Msg("payment link generation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleSweep is the scheduled-trigger endpoint.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	count, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"expired": count})
}

// handleReport streams the confirmed-bookings workbook. Defaults to the
// last 30 days.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	to := time.Now().In(s.loc)
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			http.Error(w, "bad from date", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			http.Error(w, "bad to date", http.StatusBadRequest)
			return
		}
		to = parsed.AddDate(0, 0, 1)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=bookings_%s.xlsx", time.Now().Format("20060102")))
	if err := s.reporter.WriteConfirmed(r.Context(), from, to, w); err != nil {
		s.logger.Error().Err(err).Msg("report generation failed")
	}
}
