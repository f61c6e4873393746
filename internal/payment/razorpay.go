package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/config"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// linkExpiry bounds how long a Razorpay payment link stays payable. It
// matches the reservation hold so a link cannot outlive its booking.
const linkExpiry = 10 * time.Minute

// Razorpay implements hosted payment links over the Razorpay REST API.
// Webhooks are authenticated with an HMAC-SHA256 signature over the raw
// body.
type Razorpay struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	callbackURL   string
	http          *http.Client
	logger        *zerolog.Logger
}

func NewRazorpay(cfg config.RazorpayConfig, callbackURL string, logger *zerolog.Logger) *Razorpay {
	return &Razorpay{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       cfg.BaseURL,
		callbackURL:   callbackURL,
		http:          &http.Client{Timeout: 15 * time.Second},
		logger:        logger,
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

type razorpayLinkRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	AcceptPartial  bool              `json:"accept_partial"`
	Description    string            `json:"description"`
	ReminderEnable bool              `json:"reminder_enable"`
	Notes          map[string]string `json:"notes"`
	CallbackURL    string            `json:"callback_url"`
	CallbackMethod string            `json:"callback_method"`
	ReferenceID    string            `json:"reference_id"`
	ExpireBy       int64             `json:"expire_by"`
}

type razorpayLink struct {
	ID          string `json:"id"`
	ShortURL    string `json:"short_url"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	AmountPaid  int64  `json:"amount_paid"`
	Amount      int64  `json:"amount"`
}

func (r *Razorpay) GeneratePaymentLink(ctx context.Context, amount int64, token string) (string, error) {
	body, err := json.Marshal(razorpayLinkRequest{
		Amount:         amount * 100,
		Currency:       "INR",
		Description:    "Box cricket slot booking",
		Notes:          map[string]string{"booking": token},
		CallbackURL:    r.callbackURL,
		CallbackMethod: "get",
		ReferenceID:    token,
		ExpireBy:       time.Now().Add(linkExpiry).Unix(),
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/payment_links", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("razorpay link request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("razorpay link request: status %d: %s", resp.StatusCode, raw)
	}

	var link razorpayLink
	if err := json.Unmarshal(raw, &link); err != nil {
		return "", fmt.Errorf("razorpay link response: %w", err)
	}
	if link.ShortURL == "" {
		return "", fmt.Errorf("razorpay link response missing short_url")
	}
	r.logger.Info().Str("token", token).Str("link_id", link.ID).Msg("razorpay payment link generated")
	return link.ShortURL, nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity razorpayLink `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ValidateCallback checks the X-Razorpay-Signature HMAC and maps the
// webhook event to a payment result.
func (r *Razorpay) ValidateCallback(signature string, body []byte) (*models.PaymentResult, error) {
	mac := hmac.New(sha256.New, []byte(r.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return nil, fmt.Errorf("razorpay webhook signature mismatch")
	}

	var hook razorpayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("razorpay webhook body: %w", err)
	}

	status := models.PaymentFailed
	switch hook.Event {
	case "payment_link.paid":
		status = models.PaymentSuccess
	case "payment_link.expired":
		status = models.PaymentTimeout
	}
	return &models.PaymentResult{
		Status:      status,
		ReferenceID: hook.Payload.PaymentLink.Entity.ReferenceID,
		Amount:      hook.Payload.Payment.Entity.Amount,
		Currency:    "INR",
		RawPayload:  string(body),
	}, nil
}

// GetPayment resolves the link for the reference id and reports its paid
// state. Razorpay keys payment links by link id, so this filters the list
// endpoint by reference.
func (r *Razorpay) GetPayment(ctx context.Context, token string) (*models.PaymentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/v1/payment_links?reference_id="+token, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay status request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("razorpay status request: status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Items []razorpayLink `json:"payment_links"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("razorpay status response: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("razorpay payment link %s not found", token)
	}

	link := out.Items[0]
	status := models.PaymentFailed
	switch link.Status {
	case "paid":
		status = models.PaymentSuccess
	case "created", "partially_paid":
		status = models.PaymentTimeout
	}
	return &models.PaymentResult{
		Status:      status,
		ReferenceID: link.ReferenceID,
		Amount:      link.AmountPaid,
		Currency:    "INR",
		RawPayload:  string(raw),
	}, nil
}
