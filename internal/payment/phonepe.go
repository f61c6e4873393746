package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
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

const (
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"
)

// PhonePe implements the PhonePe pay-page flow. Requests carry a base64
// payload signed with X-VERIFY: sha256(payload+path+saltKey) + "###" +
// saltIndex.
type PhonePe struct {
	merchantID  string
	saltKey     string
	saltIndex   string
	baseURL     string
	callbackURL string
	http        *http.Client
	logger      *zerolog.Logger
}

func NewPhonePe(cfg config.PhonePeConfig, callbackURL string, logger *zerolog.Logger) *PhonePe {
	return &PhonePe{
		merchantID:  cfg.MerchantID,
		saltKey:     cfg.SaltKey,
		saltIndex:   cfg.SaltIndex,
		baseURL:     cfg.BaseURL,
		callbackURL: callbackURL,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

func (p *PhonePe) Name() string { return "phonepe" }

func (p *PhonePe) sign(parts ...string) string {
	h := sha256.New()
	for _, s := range parts {
		h.Write([]byte(s))
	}
	h.Write([]byte(p.saltKey))
	return hex.EncodeToString(h.Sum(nil)) + "###" + p.saltIndex
}

type phonePePayRequest struct {
	MerchantID            string                 `json:"merchantId"`
	MerchantTransactionID string                 `json:"merchantTransactionId"`
	MerchantUserID        string                 `json:"merchantUserId"`
	Amount                int64                  `json:"amount"`
	RedirectURL           string                 `json:"redirectUrl"`
	RedirectMode          string                 `json:"redirectMode"`
	CallbackURL           string                 `json:"callbackUrl"`
	PaymentInstrument     map[string]interface{} `json:"paymentInstrument"`
}

type phonePePayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (p *PhonePe) GeneratePaymentLink(ctx context.Context, amount int64, token string) (string, error) {
	payload, err := json.Marshal(phonePePayRequest{
		MerchantID:            p.merchantID,
		MerchantTransactionID: token,
		MerchantUserID:        p.merchantID,
		Amount:                amount * 100,
		RedirectURL:           p.callbackURL,
		RedirectMode:          "POST",
		CallbackURL:           p.callbackURL,
		PaymentInstrument:     map[string]interface{}{"type": "PAY_PAGE"},
	})
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.sign(encoded, phonePePayPath))

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("phonepe pay request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("phonepe pay request: status %d: %s", resp.StatusCode, raw)
	}

	var out phonePePayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("phonepe pay response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("phonepe pay rejected: %s", out.Code)
	}
	url := out.Data.InstrumentResponse.RedirectInfo.URL
	if url == "" {
		return "", fmt.Errorf("phonepe pay response missing redirect url")
	}
	p.logger.Info().Str("token", token).Msg("phonepe payment link generated")
	return url, nil
}

type phonePeCallback struct {
	Response string `json:"response"`
}

type phonePeCallbackData struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
	} `json:"data"`
}

// ValidateCallback verifies the X-VERIFY header over the base64 response
// body and decodes the embedded transaction state.
func (p *PhonePe) ValidateCallback(signature string, body []byte) (*models.PaymentResult, error) {
	var cb phonePeCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("phonepe callback body: %w", err)
	}
	if expected := p.sign(cb.Response); signature != expected {
		return nil, fmt.Errorf("phonepe callback signature mismatch")
	}

	decoded, err := base64.StdEncoding.DecodeString(cb.Response)
	if err != nil {
		return nil, fmt.Errorf("phonepe callback payload: %w", err)
	}
	return p.parseResult(decoded)
}

func (p *PhonePe) parseResult(raw []byte) (*models.PaymentResult, error) {
	var data phonePeCallbackData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("phonepe transaction payload: %w", err)
	}
	status := models.PaymentFailed
	switch data.Data.State {
	case "COMPLETED":
		status = models.PaymentSuccess
	case "PENDING":
		status = models.PaymentTimeout
	}
	return &models.PaymentResult{
		Status:      status,
		ReferenceID: data.Data.MerchantTransactionID,
		Amount:      data.Data.Amount,
		Currency:    "INR",
		RawPayload:  string(raw),
	}, nil
}

// GetPayment queries the status API for the transaction. The signature
// covers the request path, not a payload.
func (p *PhonePe) GetPayment(ctx context.Context, token string) (*models.PaymentResult, error) {
	path := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, p.merchantID, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MERCHANT-ID", p.merchantID)
	req.Header.Set("X-VERIFY", p.sign(path))

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("phonepe status request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("phonepe status request: status %d: %s", resp.StatusCode, raw)
	}
	return p.parseResult(raw)
}
