package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration
	CORSAllowedOrigins []string

	FineRule policy.Rule

	CartTTL        time.Duration
	OrderTTL       time.Duration
	ChannelTimeout time.Duration
	LockTTL        time.Duration

	AnalyticsTTL   time.Duration
	AnalyticsTopN  int
	IdempotencyTTL time.Duration

	MidtransServerKey string
	MidtransClientKey string
	MidtransSandbox   bool
	XenditSecretKey   string
	WebhookReplayTTL  time.Duration

	MailEnabled bool
	MailFrom    string
	AdminEmail  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "tpq-billing"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "tpq-app"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartTTL:        parseDuration(k.String("CART_TTL"), "72h"),
		OrderTTL:       parseDuration(k.String("ORDER_TTL"), "24h"),
		ChannelTimeout: parseDuration(k.String("CHANNEL_TIMEOUT"), "10s"),
		LockTTL:        parseDuration(k.String("RESERVATION_LOCK_TTL"), "30s"),

		AnalyticsTTL:   parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsTopN:  intOrDefault(k, "ANALYTICS_TOP_N", 5),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		MidtransServerKey: k.String("MIDTRANS_SERVER_KEY"),
		MidtransClientKey: k.String("MIDTRANS_CLIENT_KEY"),
		MidtransSandbox:   parseBool(valueOrDefault(k.String("MIDTRANS_SANDBOX"), "true")),
		XenditSecretKey:   k.String("XENDIT_SECRET_KEY"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		MailEnabled: parseBool(k.String("MAIL_ENABLED")),
		MailFrom:    k.String("MAIL_FROM"),
		AdminEmail:  k.String("ADMIN_EMAIL"),
	}

	rule, err := loadFineRule(k)
	if err != nil {
		return nil, err
	}
	cfg.FineRule = rule

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func loadFineRule(k *koanf.Koanf) (policy.Rule, error) {
	rule := policy.Rule{
		Kind:    policy.RuleKind(valueOrDefault(k.String("FINE_RULE"), string(policy.KindNone))),
		Amount:  int64(intOrDefault(k, "FINE_AMOUNT", 0)),
		PerDay:  int64(intOrDefault(k, "FINE_PER_DAY", 0)),
		MaxFine: int64(intOrDefault(k, "FINE_MAX", 0)),
	}
	switch rule.Kind {
	case policy.KindNone, policy.KindFlat, policy.KindPerDay:
	default:
		return policy.Rule{}, fmt.Errorf("FINE_RULE %q is not one of none, flat, per_day", rule.Kind)
	}
	if rule.Kind == policy.KindFlat && rule.Amount <= 0 {
		return policy.Rule{}, errors.New("FINE_AMOUNT must be positive for a flat fine rule")
	}
	if rule.Kind == policy.KindPerDay && rule.PerDay <= 0 {
		return policy.Rule{}, errors.New("FINE_PER_DAY must be positive for a per_day fine rule")
	}
	return rule, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
