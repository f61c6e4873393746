package server

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/flow"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/wa"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) RequestSlots(ctx context.Context, token, mobile string, date time.Time, slotIDs []string) (*models.Reservation, error) {
	args := m.Called(ctx, token, mobile, date, slotIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *mockLifecycle) ConfirmPayment(ctx context.Context, result *models.PaymentResult) error {
	return m.Called(ctx, result).Error(0)
}

type mockPending struct {
	mock.Mock
}

func (m *mockPending) FindPendingReservation(ctx context.Context, token, mobile string) (*models.Reservation, error) {
	args := m.Called(ctx, token, mobile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Issue(ctx context.Context, mobile string) (*models.FlowToken, error) {
	args := m.Called(ctx, mobile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlowToken), args.Error(1)
}

func (m *mockTokens) Lookup(ctx context.Context, token string) (*models.FlowToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlowToken), args.Error(1)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, msg *wa.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockMessenger) PaymentCaptured(ctx context.Context, referenceID string) (bool, error) {
	args := m.Called(ctx, referenceID)
	return args.Bool(0), args.Error(1)
}

type mockFlowEngine struct {
	mock.Mock
}

func (m *mockFlowEngine) Process(ctx context.Context, req *flow.Request) (*flow.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.Response), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "phonepe" }

func (m *mockGateway) GeneratePaymentLink(ctx context.Context, amount int64, token string) (string, error) {
	args := m.Called(ctx, amount, token)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) ValidateCallback(signature string, body []byte) (*models.PaymentResult, error) {
	args := m.Called(signature, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentResult), args.Error(1)
}

func (m *mockGateway) GetPayment(ctx context.Context, token string) (*models.PaymentResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentResult), args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) RunOnce(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) WriteConfirmed(ctx context.Context, from, to time.Time, w io.Writer) error {
	args := m.Called(ctx, from, to, w)
	return args.Error(0)
}

type fixture struct {
	lifecycle *mockLifecycle
	pending   *mockPending
	tokens    *mockTokens
	messenger *mockMessenger
	engine    *mockFlowEngine
	gateway   *mockGateway
	sweeper   *mockSweeper
	reporter  *mockReporter
	crypto    *flow.Crypto
	key       *rsa.PrivateKey
	srv       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "flow.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))
	crypto, err := flow.NewCrypto(keyPath)
	require.NoError(t, err)

	f := &fixture{
		lifecycle: &mockLifecycle{},
		pending:   &mockPending{},
		tokens:    &mockTokens{},
		messenger: &mockMessenger{},
		engine:    &mockFlowEngine{},
		gateway:   &mockGateway{},
		sweeper:   &mockSweeper{},
		reporter:  &mockReporter{},
		crypto:    crypto,
		key:       key,
	}
	logger := zerolog.New(io.Discard)
	s := New(f.lifecycle, f.pending, f.tokens, f.tokens, f.messenger, f.crypto,
		f.engine, f.gateway, f.sweeper, f.reporter, Options{
			VerifyToken: "verify-secret",
			FlowID:      "flow-1",
			PayLinkBase: "https://cbc.example/api/pay",
			Location:    time.UTC,
		}, &logger)
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func TestWebhookVerification(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/webhook?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12345", string(body))
}

func TestWebhookVerificationBadToken(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func postWebhook(t *testing.T, url string, message string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","messages":[%s]}}]}]}`, message)
	resp, err := http.Post(url+"/api/webhook", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestWebhookTextStartsBookingSession(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Issue", mock.Anything, "919900112233").Return(&models.FlowToken{
		Token: "tok123", Mobile: "919900112233",
	}, nil)
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(m *wa.Message) bool {
		return m.Type == "interactive" && m.Interactive.Type == "flow" &&
			m.Interactive.Action.Parameters.FlowToken == "tok123"
	})).Return(nil)

	resp := postWebhook(t, f.srv.URL, `{"from":"919900112233","id":"wamid.1","type":"text","text":{"body":"hi"}}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.messenger.AssertExpectations(t)
}

func flowReplyMessage(sub map[string]string) string {
	inner, _ := json.Marshal(sub)
	quoted, _ := json.Marshal(string(inner))
	return fmt.Sprintf(`{"from":"919900112233","id":"wamid.2","type":"interactive","interactive":{"type":"nfm_reply","nfm_reply":{"response_json":%s}}}`, quoted)
}

func TestWebhookFlowReplyCreatesReservation(t *testing.T) {
	f := newFixture(t)
	date := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	f.lifecycle.On("RequestSlots", mock.Anything, "tok123", "919900112233", date, []string{"MON-S9", "MON-S10"}).
		Return(&models.Reservation{
			Token: "tok123", Mobile: "919900112233", Date: "22 Jan 2024",
			SlotIDs: []string{"MON-S9", "MON-S10"}, Amount: 2400, State: models.StatePending,
		}, nil)
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(m *wa.Message) bool {
		return m.Type == "text" && bytes.Contains([]byte(m.Text.Body), []byte("tx=tok123"))
	})).Return(nil)

	resp := postWebhook(t, f.srv.URL, flowReplyMessage(map[string]string{
		"selected_date": "22 Jan 2024",
		"slots":         "MON-S9, MON-S10",
		"amount":        "₹ 2400/-",
		"token":         "tok123",
	}))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.lifecycle.AssertExpectations(t)
	f.messenger.AssertExpectations(t)
}

func TestWebhookFlowReplyExpiredSession(t *testing.T) {
	f := newFixture(t)
	f.lifecycle.On("RequestSlots", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, booking.ErrInvalidOrExpiredToken)
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(m *wa.Message) bool {
		return m.Type == "text" && bytes.Contains([]byte(m.Text.Body), []byte("expired"))
	})).Return(nil)

	resp := postWebhook(t, f.srv.URL, flowReplyMessage(map[string]string{
		"selected_date": "22 Jan 2024", "slots": "MON-S9", "token": "stale",
	}))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.messenger.AssertExpectations(t)
}

func TestWebhookFlowReplySlotTaken(t *testing.T) {
	f := newFixture(t)
	f.lifecycle.On("RequestSlots", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, booking.ErrSlotUnavailable)
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(m *wa.Message) bool {
		return m.Type == "text" && bytes.Contains([]byte(m.Text.Body), []byte("no longer available"))
	})).Return(nil)

	resp := postWebhook(t, f.srv.URL, flowReplyMessage(map[string]string{
		"selected_date": "22 Jan 2024", "slots": "MON-S9", "token": "tok123",
	}))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.messenger.AssertExpectations(t)
}

func TestWebhookPaymentNotificationCrossChecked(t *testing.T) {
	f := newFixture(t)
	f.messenger.On("PaymentCaptured", mock.Anything, "tok123").Return(true, nil)
	f.lifecycle.On("ConfirmPayment", mock.Anything, mock.MatchedBy(func(r *models.PaymentResult) bool {
		return r.ReferenceID == "tok123" && r.Status == models.PaymentSuccess && r.Amount == 120000
	})).Return(nil)

	resp := postWebhook(t, f.srv.URL,
		`{"from":"919900112233","id":"wamid.3","type":"payment","payment":{"reference_id":"tok123","status":"captured","amount":{"value":120000,"offset":100},"currency":"INR"}}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.lifecycle.AssertExpectations(t)
}

func TestWebhookPaymentNotificationNotCaptured(t *testing.T) {
	f := newFixture(t)
	f.messenger.On("PaymentCaptured", mock.Anything, "tok123").Return(false, nil)

	resp := postWebhook(t, f.srv.URL,
		`{"from":"919900112233","id":"wamid.3","type":"payment","payment":{"reference_id":"tok123","status":"captured","amount":{"value":120000,"offset":100},"currency":"INR"}}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.lifecycle.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestFlowEndpointRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Process", mock.Anything, mock.MatchedBy(func(r *flow.Request) bool {
		return r.Action == "ping"
	})).Return(&flow.Response{Data: map[string]interface{}{"status": "active"}}, nil)

	// Build the envelope the way the flow runtime does.
	aesKey := make([]byte, 16)
	iv := make([]byte, 12)
	_, err := rand.Read(aesKey)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, iv, []byte(`{"version":"3.0","action":"ping"}`), nil)
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &f.key.PublicKey, aesKey, nil)
	require.NoError(t, err)

	env, err := json.Marshal(flow.Envelope{
		EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
		InitialVector:     base64.StdEncoding.EncodeToString(iv),
	})
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/api/flow", "application/json", bytes.NewReader(env))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Open the response with the flipped IV.
	encoded, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	ciphertext, err := base64.StdEncoding.DecodeString(string(encoded))
	require.NoError(t, err)
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = b ^ 0xFF
	}
	opened, err := gcm.Open(nil, flipped, ciphertext, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"screen":"","data":{"status":"active"}}`, string(opened))
}

func TestFlowEndpointBadEnvelope(t *testing.T) {
	f := newFixture(t)

	env, _ := json.Marshal(flow.Envelope{
		EncryptedFlowData: "xxxx",
		EncryptedAESKey:   base64.StdEncoding.EncodeToString([]byte("not a wrapped key")),
		InitialVector:     base64.StdEncoding.EncodeToString(make([]byte, 12)),
	})
	resp, err := http.Post(f.srv.URL+"/api/flow", "application/json", bytes.NewReader(env))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMisdirectedRequest, resp.StatusCode)
}

func TestPaymentCallbackConfirms(t *testing.T) {
	f := newFixture(t)
	result := &models.PaymentResult{Status: models.PaymentSuccess, ReferenceID: "tok123", Amount: 120000}
	f.gateway.On("ValidateCallback", "sig", mock.Anything).Return(result, nil)
	f.lifecycle.On("ConfirmPayment", mock.Anything, result).Return(nil)

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment", bytes.NewBufferString(`{"response":"abc"}`))
	req.Header.Set("X-VERIFY", "sig")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	f.lifecycle.AssertExpectations(t)
}

func TestPaymentCallbackBadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("ValidateCallback", "bad", mock.Anything).Return(nil, fmt.Errorf("signature mismatch"))

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment", bytes.NewBufferString(`{}`))
	req.Header.Set("X-VERIFY", "bad")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	f.lifecycle.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestPaymentCallbackLostRaceStill200(t *testing.T) {
	f := newFixture(t)
	result := &models.PaymentResult{Status: models.PaymentSuccess, ReferenceID: "tok123"}
	f.gateway.On("ValidateCallback", "sig", mock.Anything).Return(result, nil)
	f.lifecycle.On("ConfirmPayment", mock.Anything, result).Return(booking.ErrSlotUnavailable)

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment", bytes.NewBufferString(`{}`))
	req.Header.Set("X-VERIFY", "sig")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	// 200 so the provider stops retrying; the refund path already ran.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPayRedirect(t *testing.T) {
	f := newFixture(t)
	f.sweeper.On("RunOnce", mock.Anything).Return(int64(0), nil)
	f.tokens.On("Lookup", mock.Anything, "tok123").Return(&models.FlowToken{Token: "tok123"}, nil)
	f.pending.On("FindPendingReservation", mock.Anything, "tok123", "").
		Return(&models.Reservation{Token: "tok123", Amount: 2400}, nil)
	f.gateway.On("GeneratePaymentLink", mock.Anything, int64(2400), "tok123").
		Return("https://pay.example/abc", nil)

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.srv.URL + "/api/pay?tx=tok123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://pay.example/abc", resp.Header.Get("Location"))
}

func TestPayRedirectExpiredHold(t *testing.T) {
	f := newFixture(t)
	f.sweeper.On("RunOnce", mock.Anything).Return(int64(1), nil)
	f.tokens.On("Lookup", mock.Anything, "tok123").Return(&models.FlowToken{Token: "tok123"}, nil)
	f.pending.On("FindPendingReservation", mock.Anything, "tok123", "").
		Return(nil, booking.ErrNotFound)

	resp, err := http.Get(f.srv.URL + "/api/pay?tx=tok123")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "expired")
	f.gateway.AssertNotCalled(t, "GeneratePaymentLink", mock.Anything, mock.Anything, mock.Anything)
}

func TestPayRedirectUnknownToken(t *testing.T) {
	f := newFixture(t)
	f.sweeper.On("RunOnce", mock.Anything).Return(int64(0), nil)
	f.tokens.On("Lookup", mock.Anything, "nope").Return(nil, booking.ErrNotFound)

	resp, err := http.Get(f.srv.URL + "/api/pay?tx=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSweepEndpoint(t *testing.T) {
	f := newFixture(t)
	f.sweeper.On("RunOnce", mock.Anything).Return(int64(3), nil)

	resp, err := http.Post(f.srv.URL+"/api/sweep", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(3), out["expired"])
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t)
	f.reporter.On("WriteConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, _ = args.Get(3).(io.Writer).Write([]byte("xlsx-bytes"))
		}).Return(nil)

	resp, err := http.Get(f.srv.URL + "/api/report?from=2024-01-01&to=2024-01-31")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "xlsx-bytes", string(body))
}

func TestReportEndpointBadDate(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/report?from=January")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
