package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/config"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(io.Discard)

func newPhonePe(baseURL string) *PhonePe {
	return NewPhonePe(config.PhonePeConfig{
		MerchantID: "CBCTEST",
		SaltKey:    "salt-key-1",
		SaltIndex:  "1",
		BaseURL:    baseURL,
	}, "https://example.com/api/payment", &testLogger)
}

func phonePeSign(saltKey, saltIndex string, parts ...string) string {
	h := sha256.New()
	for _, s := range parts {
		h.Write([]byte(s))
	}
	h.Write([]byte(saltKey))
	return hex.EncodeToString(h.Sum(nil)) + "###" + saltIndex
}

func TestPhonePeGeneratePaymentLink(t *testing.T) {
	var gotVerify, gotRequest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pg/v1/pay", r.URL.Path)
		gotVerify = r.Header.Get("X-VERIFY")
		var body struct {
			Request string `json:"request"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotRequest = body.Request
		fmt.Fprint(w, `{"success":true,"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"redirectInfo":{"url":"https://pay.example/abc"}}}}`)
	}))
	defer srv.Close()

	gw := newPhonePe(srv.URL)
	url, err := gw.GeneratePaymentLink(context.Background(), 1200, "tok123")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", url)

	// Signature covers base64 payload + path + salt.
	assert.Equal(t, phonePeSign("salt-key-1", "1", gotRequest, "/pg/v1/pay"), gotVerify)

	payload, err := base64.StdEncoding.DecodeString(gotRequest)
	require.NoError(t, err)
	var req phonePePayRequest
	require.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, "tok123", req.MerchantTransactionID)
	assert.Equal(t, int64(120000), req.Amount) // paise
}

func TestPhonePeGenerateLinkRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"code":"INTERNAL_SERVER_ERROR"}`)
	}))
	defer srv.Close()

	_, err := newPhonePe(srv.URL).GeneratePaymentLink(context.Background(), 1200, "tok123")
	assert.ErrorContains(t, err, "INTERNAL_SERVER_ERROR")
}

func phonePeCallbackBody(t *testing.T, state string, amount int64) ([]byte, string) {
	t.Helper()
	inner := fmt.Sprintf(
		`{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"tok123","transactionId":"T123","amount":%d,"state":%q}}`,
		amount, state)
	encoded := base64.StdEncoding.EncodeToString([]byte(inner))
	body, err := json.Marshal(map[string]string{"response": encoded})
	require.NoError(t, err)
	return body, phonePeSign("salt-key-1", "1", encoded)
}

func TestPhonePeValidateCallback(t *testing.T) {
	gw := newPhonePe("")
	body, sig := phonePeCallbackBody(t, "COMPLETED", 120000)

	result, err := gw.ValidateCallback(sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, result.Status)
	assert.Equal(t, "tok123", result.ReferenceID)
	assert.Equal(t, int64(120000), result.Amount)
	assert.Equal(t, int64(1200), result.AmountRupees())
}

func TestPhonePeValidateCallbackBadSignature(t *testing.T) {
	gw := newPhonePe("")
	body, _ := phonePeCallbackBody(t, "COMPLETED", 120000)

	_, err := gw.ValidateCallback("deadbeef###1", body)
	assert.ErrorContains(t, err, "signature mismatch")
}

func TestPhonePeValidateCallbackFailedState(t *testing.T) {
	gw := newPhonePe("")
	body, sig := phonePeCallbackBody(t, "FAILED", 120000)

	result, err := gw.ValidateCallback(sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, result.Status)
}

func TestPhonePeGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := "/pg/v1/status/CBCTEST/tok123"
		require.Equal(t, path, r.URL.Path)
		assert.Equal(t, phonePeSign("salt-key-1", "1", path), r.Header.Get("X-VERIFY"))
		fmt.Fprint(w, `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"tok123","amount":120000,"state":"COMPLETED"}}`)
	}))
	defer srv.Close()

	result, err := newPhonePe(srv.URL).GetPayment(context.Background(), "tok123")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "tok123", result.ReferenceID)
}

func newRazorpay(baseURL string) *Razorpay {
	return NewRazorpay(config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec",
		BaseURL:       baseURL,
	}, "https://example.com/api/payment", &testLogger)
}

func TestRazorpayGeneratePaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var req razorpayLinkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(120000), req.Amount)
		assert.Equal(t, "tok123", req.ReferenceID)
		assert.False(t, req.AcceptPartial)

		fmt.Fprint(w, `{"id":"plink_1","short_url":"https://rzp.io/i/abc","reference_id":"tok123","status":"created"}`)
	}))
	defer srv.Close()

	url, err := newRazorpay(srv.URL).GeneratePaymentLink(context.Background(), 1200, "tok123")
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/abc", url)
}

func razorpaySig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayValidateCallback(t *testing.T) {
	gw := newRazorpay("")
	body := []byte(`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"plink_1","reference_id":"tok123","status":"paid"}},"payment":{"entity":{"id":"pay_1","amount":120000,"currency":"INR","status":"captured"}}}}`)

	result, err := gw.ValidateCallback(razorpaySig("whsec", body), body)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, result.Status)
	assert.Equal(t, "tok123", result.ReferenceID)
	assert.Equal(t, int64(120000), result.Amount)
}

func TestRazorpayValidateCallbackBadSignature(t *testing.T) {
	gw := newRazorpay("")
	body := []byte(`{"event":"payment_link.paid"}`)

	_, err := gw.ValidateCallback("bogus", body)
	assert.ErrorContains(t, err, "signature mismatch")
}

func TestRazorpayValidateCallbackExpired(t *testing.T) {
	gw := newRazorpay("")
	body := []byte(`{"event":"payment_link.expired","payload":{"payment_link":{"entity":{"reference_id":"tok123"}}}}`)

	result, err := gw.ValidateCallback(razorpaySig("whsec", body), body)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentTimeout, result.Status)
}

func TestRazorpayGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_links", r.URL.Path)
		assert.Equal(t, "tok123", r.URL.Query().Get("reference_id"))
		fmt.Fprint(w, `{"payment_links":[{"id":"plink_1","reference_id":"tok123","status":"paid","amount":120000,"amount_paid":120000}]}`)
	}))
	defer srv.Close()

	result, err := newRazorpay(srv.URL).GetPayment(context.Background(), "tok123")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestGatewayFactory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Payment.Provider = "phonepe"
	cfg.Payment.PhonePe = config.PhonePeConfig{MerchantID: "m", SaltKey: "s", SaltIndex: "1"}

	gw, err := New(cfg, &testLogger)
	require.NoError(t, err)
	assert.Equal(t, "phonepe", gw.Name())

	cfg.Payment.Provider = "razorpay"
	gw, err = New(cfg, &testLogger)
	require.NoError(t, err)
	assert.Equal(t, "razorpay", gw.Name())

	cfg.Payment.Provider = "stripe"
	_, err = New(cfg, &testLogger)
	assert.Error(t, err)
}
