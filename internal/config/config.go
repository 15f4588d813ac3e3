package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ChannelTwilio   = "twilio"
	ChannelTelegram = "telegram"
)

const devJWTSecret = "dev-only-secret-change-me"

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Location    *time.Location

	JWTSecret    string
	JWTIssuer    string
	JWTExpiresIn time.Duration

	DispatchInterval time.Duration
	DispatchTimeout  time.Duration
	StatusOverride   bool

	Channel  string
	Twilio   TwilioConfig
	Telegram TelegramConfig

	RedisAddr     string
	RedisPassword string

	DefaultAdmin AdminSeed
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string // TWILIO_PHONE, without the whatsapp: prefix
	AdminPhone string
	APIURL     string
}

type TelegramConfig struct {
	BotToken    string
	AdminChatID string
}

type AdminSeed struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// ChannelConfigured reports whether the dispatcher has both a transport and a
// recipient; without them every cycle is a no-op.
func (c *Config) ChannelConfigured() bool {
	switch c.Channel {
	case ChannelTwilio:
		return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" &&
			c.Twilio.From != "" && c.Twilio.AdminPhone != ""
	case ChannelTelegram:
		return c.Telegram.BotToken != "" && c.Telegram.AdminChatID != ""
	}
	return false
}

// Recipient is the single administrator address messages go to.
func (c *Config) Recipient() string {
	if c.Channel == ChannelTelegram {
		return c.Telegram.AdminChatID
	}
	return c.Twilio.AdminPhone
}

func (c *Config) IsProd() bool { return c.Env == "prod" }

func Load() (*Config, error) {
	tz := getenv("TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL: required env is empty")
	}

	env := strings.ToLower(getenv("ENV", "dev"))

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if env == "prod" {
			return nil, fmt.Errorf("JWT_SECRET: required in prod")
		}
		secret = devJWTSecret
	}

	ttl, err := getenvDuration("JWT_EXPIRES_IN", time.Hour)
	if err != nil {
		return nil, err
	}
	interval, err := getenvDuration("DISPATCH_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := getenvDuration("DISPATCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	override, err := getenvBool("STATUS_OVERRIDE", false)
	if err != nil {
		return nil, err
	}

	channel := strings.ToLower(getenv("CHANNEL", ChannelTwilio))
	if channel != ChannelTwilio && channel != ChannelTelegram {
		return nil, fmt.Errorf("CHANNEL: unknown channel %q", channel)
	}

	adminPassword := os.Getenv("ADMIN_DEFAULT_PASSWORD")
	if adminPassword == "" && env != "prod" {
		adminPassword = "admin123"
	}

	cfg := &Config{
		DatabaseURL: dbURL,
		HTTPAddr:    getenv("HTTP_ADDR", ":3000"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         env,
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		Location:    loc,

		JWTSecret:    secret,
		JWTIssuer:    getenv("JWT_ISSUER", "campus-maintenance"),
		JWTExpiresIn: ttl,

		DispatchInterval: interval,
		DispatchTimeout:  timeout,
		StatusOverride:   override,

		Channel: channel,
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			From:       strings.TrimPrefix(os.Getenv("TWILIO_PHONE"), "whatsapp:"),
			AdminPhone: strings.TrimPrefix(os.Getenv("ADMIN_PHONE"), "whatsapp:"),
			APIURL:     getenv("TWILIO_API_URL", "https://api.twilio.com"),
		},
		Telegram: TelegramConfig{
			BotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
			AdminChatID: os.Getenv("TELEGRAM_ADMIN_CHAT_ID"),
		},

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DefaultAdmin: AdminSeed{
			Name:     getenv("ADMIN_DEFAULT_NAME", "System Admin"),
			Email:    strings.ToLower(getenv("ADMIN_DEFAULT_EMAIL", "admin@mit.edu")),
			Phone:    getenv("ADMIN_PHONE", "1234567890"),
			Password: adminPassword,
		},
	}
	if cfg.Telegram.AdminChatID != "" {
		if _, err := strconv.ParseInt(cfg.Telegram.AdminChatID, 10, 64); err != nil {
			return nil, fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID: %w", err)
		}
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(v); err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", k)
	}
	return d, nil
}

func getenvBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
