package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config groups every tunable of the settlement engine. Values come from the
// environment (and an optional .env file), anything missing takes the default.
type Config struct {
	HTTPAddr string

	BackendURL     string
	BackendTimeout time.Duration

	PushURL      string
	PushChannels []string
	AMQPURL      string
	AMQPExchange string

	Payment      PaymentConfig
	Reconnect    ReconnectConfig
	Notification NotificationConfig
	WinRate      WinRateConfig

	OfferTick time.Duration

	DB DBConfig
}

// PaymentConfig bounds the payment session state machine.
type PaymentConfig struct {
	MaxVerifyAttempts int
	PendingDelay      time.Duration
	ErrorDelay        time.Duration
	RedirectDelay     time.Duration
	MaxAmount         int64
	Currency          string
}

type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

type NotificationConfig struct {
	DedupWindow  time.Duration
	DedupHistory int
	Buffer       int
	PollInterval time.Duration
}

// WinRateConfig holds the thresholds (percent) used to label a win rate.
type WinRateConfig struct {
	Winning   float64
	Favorable float64
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Enabled reports whether a database was configured at all.
func (d DBConfig) Enabled() bool { return d.Host != "" }

// DSN builds the postgres url in the format pgx and migrate expect.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any lookup function, tests pass a map backed one.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		HTTPAddr:       p.str("HTTP_ADDR", ":9000"),
		BackendURL:     strings.TrimRight(p.str("BACKEND_URL", "http://localhost:8000"), "/"),
		BackendTimeout: p.duration("BACKEND_TIMEOUT", 10*time.Second),
		PushURL:        p.str("PUSH_URL", "ws://localhost:8080/payment-notifications"),
		PushChannels:   p.list("PUSH_CHANNELS", []string{"auction_results", "payment_status", "second_chance_offers", "booking_confirmations"}),
		AMQPURL:        p.str("AMQP_URL", ""),
		AMQPExchange:   p.str("AMQP_EXCHANGE", "settlement_events"),
		Payment: PaymentConfig{
			MaxVerifyAttempts: p.integer("PAYMENT_MAX_VERIFY_ATTEMPTS", 10),
			PendingDelay:      p.duration("PAYMENT_PENDING_DELAY", 3*time.Second),
			ErrorDelay:        p.duration("PAYMENT_ERROR_DELAY", 5*time.Second),
			RedirectDelay:     p.duration("PAYMENT_REDIRECT_DELAY", time.Second),
			MaxAmount:         int64(p.integer("PAYMENT_MAX_AMOUNT", 100000000)),
			Currency:          p.str("PAYMENT_CURRENCY", "VND"),
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   p.duration("RECONNECT_BASE_DELAY", time.Second),
			MaxAttempts: p.integer("RECONNECT_MAX_ATTEMPTS", 5),
		},
		Notification: NotificationConfig{
			DedupWindow:  p.duration("DEDUP_WINDOW", 30*time.Minute),
			DedupHistory: p.integer("DEDUP_HISTORY", 1000),
			Buffer:       p.integer("ROUTER_BUFFER", 256),
			PollInterval: p.duration("POLL_INTERVAL", 30*time.Second),
		},
		WinRate: WinRateConfig{
			Winning:   p.float("WINRATE_WINNING", 50),
			Favorable: p.float("WINRATE_FAVORABLE", 80),
		},
		OfferTick: p.duration("OFFER_TICK", time.Second),
		DB: DBConfig{
			Host:     p.str("DB_HOST", ""),
			Port:     p.str("DB_PORT", "5432"),
			User:     p.str("DB_USER", ""),
			Password: p.str("DB_PASSWORD", ""),
			Name:     p.str("DB_NAME", ""),
			SSLMode:  p.str("DB_SSLMODE", "disable"),
		},
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(p.errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Payment.MaxVerifyAttempts < 1:
		return fmt.Errorf("config: PAYMENT_MAX_VERIFY_ATTEMPTS must be at least 1")
	case c.Payment.MaxAmount < 1:
		return fmt.Errorf("config: PAYMENT_MAX_AMOUNT must be positive")
	case c.Reconnect.MaxAttempts < 0:
		return fmt.Errorf("config: RECONNECT_MAX_ATTEMPTS cannot be negative")
	case c.WinRate.Winning < 0 || c.WinRate.Favorable > 100 || c.WinRate.Winning > c.WinRate.Favorable:
		return fmt.Errorf("config: win rate thresholds must satisfy 0 <= WINRATE_WINNING <= WINRATE_FAVORABLE <= 100")
	case c.OfferTick <= 0:
		return fmt.Errorf("config: OFFER_TICK must be positive")
	}
	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) list(key string, def []string) []string {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}
