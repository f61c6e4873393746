package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "test.db")+`
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "phonepe", cfg.Payment.Provider)
	assert.Equal(t, 10*time.Minute, cfg.HoldDuration())
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WA_TOKEN", "tok-123")
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "test.db")+`
whatsapp:
  api_token: ${TEST_WA_TOKEN}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.WhatsApp.APIToken)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.WhatsApp.APIToken = "t"
	cfg.WhatsApp.PhoneNumberID = "p"
	cfg.Payment.Provider = "phonepe"
	assert.Error(t, cfg.Validate(), "phonepe credentials missing")

	cfg.Payment.PhonePe.MerchantID = "M"
	cfg.Payment.PhonePe.SaltKey = "K"
	assert.NoError(t, cfg.Validate())

	cfg.Payment.Provider = "razorpay"
	assert.Error(t, cfg.Validate(), "razorpay credentials missing")
	cfg.Payment.Razorpay.KeyID = "id"
	cfg.Payment.Razorpay.KeySecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Payment.Provider = "stripe"
	assert.Error(t, cfg.Validate())
}

func TestBookingOverrides(t *testing.T) {
	cfg := &Config{}
	cfg.Booking.HoldMinutes = 15
	cfg.Booking.TokenTTLHours = 1
	cfg.Booking.SweepIntervalSeconds = 30
	assert.Equal(t, 15*time.Minute, cfg.HoldDuration())
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, 30*time.Second, cfg.SweepInterval())
}
