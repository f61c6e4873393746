package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Everything is loaded once in
// main and passed into constructors; there are no package-level singletons.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	WhatsApp struct {
		APIToken       string   `yaml:"api_token"`
		PhoneNumberID  string   `yaml:"phone_number_id"`
		FlowID         string   `yaml:"flow_id"`
		VerifyToken    string   `yaml:"verify_token"`
		BaseURL        string   `yaml:"base_url"`
		PrivateKeyPath string   `yaml:"private_key_path"`
		NotifyNumbers  []string `yaml:"notify_numbers"`
		RatePerSecond  float64  `yaml:"rate_per_second"`
		RateBurst      int      `yaml:"rate_burst"`
	} `yaml:"whatsapp"`

	Payment struct {
		Provider    string `yaml:"provider"` // "phonepe" or "razorpay"
		CallbackURL string `yaml:"callback_url"`
		PayLinkBase string `yaml:"pay_link_base"`

		PhonePe  PhonePeConfig  `yaml:"phonepe"`
		Razorpay RazorpayConfig `yaml:"razorpay"`
	} `yaml:"payment"`

	Booking struct {
		HoldMinutes          int    `yaml:"hold_minutes"`
		TokenTTLHours        int    `yaml:"token_ttl_hours"`
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		Timezone             string `yaml:"timezone"`
		DefaultSlotPrice     int64  `yaml:"default_slot_price"`
	} `yaml:"booking"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// PhonePeConfig holds the PhonePe merchant credentials.
type PhonePeConfig struct {
	MerchantID string `yaml:"merchant_id"`
	SaltKey    string `yaml:"salt_key"`
	SaltIndex  string `yaml:"salt_index"`
	BaseURL    string `yaml:"base_url"`
}

// RazorpayConfig holds the Razorpay API credentials.
type RazorpayConfig struct {
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// BackupConfig controls the periodic sqlite file backup.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config from path, expanding ${ENV_VAR} placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/cbc.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://graph.facebook.com/v17.0"
	}
	if cfg.WhatsApp.RatePerSecond <= 0 {
		cfg.WhatsApp.RatePerSecond = 20
	}
	if cfg.WhatsApp.RateBurst <= 0 {
		cfg.WhatsApp.RateBurst = 30
	}
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "phonepe"
	}
	if cfg.Payment.PhonePe.BaseURL == "" {
		cfg.Payment.PhonePe.BaseURL = "https://api.phonepe.com/apis/hermes"
	}
	if cfg.Payment.PhonePe.SaltIndex == "" {
		cfg.Payment.PhonePe.SaltIndex = "1"
	}
	if cfg.Payment.Razorpay.BaseURL == "" {
		cfg.Payment.Razorpay.BaseURL = "https://api.razorpay.com"
	}

	return &cfg, nil
}

// Validate checks settings without which the service cannot start.
func (c *Config) Validate() error {
	if c.WhatsApp.APIToken == "" {
		return fmt.Errorf("whatsapp.api_token is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	switch c.Payment.Provider {
	case "phonepe":
		if c.Payment.PhonePe.MerchantID == "" || c.Payment.PhonePe.SaltKey == "" {
			return fmt.Errorf("payment.phonepe merchant_id and salt_key are required")
		}
	case "razorpay":
		if c.Payment.Razorpay.KeyID == "" || c.Payment.Razorpay.KeySecret == "" {
			return fmt.Errorf("payment.razorpay key_id and key_secret are required")
		}
	default:
		return fmt.Errorf("unknown payment.provider %q", c.Payment.Provider)
	}
	return nil
}

// HoldDuration is how long a pending reservation blocks its slots.
func (c *Config) HoldDuration() time.Duration {
	if c.Booking.HoldMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Booking.HoldMinutes) * time.Minute
}

// TokenTTL is the lifetime of a booking-session token.
func (c *Config) TokenTTL() time.Duration {
	if c.Booking.TokenTTLHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Booking.TokenTTLHours) * time.Hour
}

// SweepInterval is how often the expiry sweep runs.
func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalSeconds) * time.Second
}

// SlotPrice is the price seeded for new catalog slots.
func (c *Config) SlotPrice() int64 {
	if c.Booking.DefaultSlotPrice <= 0 {
		return 1200
	}
	return c.Booking.DefaultSlotPrice
}

// Location resolves the configured timezone, defaulting to Asia/Kolkata.
func (c *Config) Location() *time.Location {
	tz := c.Booking.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
