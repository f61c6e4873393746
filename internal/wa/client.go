package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client sends messages through the Cloud API. All sends pass through a
// token-bucket limiter so notification bursts stay under the platform
// messaging rate.
type Client struct {
	baseURL       string
	phoneNumberID string
	apiToken      string
	http          *http.Client
	limiter       *rate.Limiter
	logger        *zerolog.Logger
}

func NewClient(baseURL, phoneNumberID, apiToken string, perSecond float64, burst int, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		apiToken:      apiToken,
		http:          &http.Client{Timeout: 15 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:        logger,
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Send delivers the message, blocking on the rate limiter if needed.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		return err
	}

	var out sendResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("whatsapp send failed: %s (code %d)", out.Error.Message, out.Error.Code)
	}

	metrics.IncMessageSent(msg.Type)
	c.logger.Debug().Str("to", msg.To).Str("type", msg.Type).Msg("message sent")
	return nil
}

type paymentStatusResponse struct {
	Payments []struct {
		Status      string `json:"status"`
		ReferenceID string `json:"reference_id"`
	} `json:"payments"`
	Error *apiError `json:"error"`
}

// PaymentCaptured cross-checks a platform payment notification against the
// Cloud API payment status endpoint.
func (c *Client) PaymentCaptured(ctx context.Context, referenceID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s/payments/%s", c.baseURL, c.phoneNumberID, referenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("payment status request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	var out paymentStatusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("payment status response: %w", err)
	}
	if out.Error != nil {
		return false, fmt.Errorf("payment status failed: %s (code %d)", out.Error.Message, out.Error.Code)
	}
	return len(out.Payments) > 0 && out.Payments[0].Status == "CAPTURED", nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("whatsapp request: status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
