package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/opaline-simulator/internal/ledger"
	"github.com/noah-isme/opaline-simulator/internal/pricing"
)

// Error reports a missing or malformed configuration value. It is fatal at startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	BodyLimitBytes     int64

	Pricing pricing.Config
	Ledger  LedgerConfig
	Notify  NotifyConfig

	RedisURL        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
	LockWait        time.Duration

	KafkaBrokers string
	KafkaTopic   string

	Obs ObsConfig
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	Backend         string
	DuplicatePolicy ledger.DuplicatePolicy
	Timeout         time.Duration
	Location        *time.Location
	Sheets          ledger.SheetsConfig
	XLSXPath        string
	XLSXSheet       string
	DatabaseURL     string
	PebbleDir       string
}

// NotifyConfig configures the confirmation email.
type NotifyConfig struct {
	Transport          string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	From               string
	Subject            string
	TemplatePath       string
	Timeout            time.Duration
	OnPersistFailure   bool
	BreakerMinRequests int
	BreakerRatio       float64
	BreakerOpenFor     time.Duration
}

// ObsConfig controls logging, metrics and tracing.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	HTTPBucketsMS    string
	EnableTracing    bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplerRatio     float64
}

// BackendConfig returns the ledger backend selection for ledger.OpenStore.
func (l LedgerConfig) BackendConfig() ledger.BackendConfig {
	return ledger.BackendConfig{
		Backend:     l.Backend,
		Sheets:      l.Sheets,
		XLSXPath:    l.XLSXPath,
		XLSXSheet:   l.XLSXSheet,
		DatabaseURL: l.DatabaseURL,
		PebbleDir:   l.PebbleDir,
	}
}

// Load reads configuration from environment variables and optional .env files.
// Every invalid key is reported; the returned error unwraps to one *Error per key.
func Load() (*Config, error) {
	p, err := newParser()
	if err != nil {
		return nil, err
	}
	k := p.k

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),
		ReadTimeout:        p.duration("HTTP_READ_TIMEOUT", "10s"),
		WriteTimeout:       p.duration("HTTP_WRITE_TIMEOUT", "30s"),
		ShutdownTimeout:    p.duration("HTTP_SHUTDOWN_TIMEOUT", "15s"),
		BodyLimitBytes:     int64(p.integer("HTTP_BODY_LIMIT_BYTES", 16<<10)),

		Pricing: pricing.Config{
			PricePerKit1Person: p.money("PRICE_KIT_1P", "14"),
			PricePerKit2Person: p.money("PRICE_KIT_2P", "22"),
			CostPerKit:         p.money("COST_PER_KIT", "12.15"),
		},

		RedisURL:        strings.TrimSpace(k.String("REDIS_URL")),
		RateLimitMax:    p.integer("SUBMIT_RATE_LIMIT_MAX", 10),
		RateLimitWindow: p.duration("SUBMIT_RATE_LIMIT_WINDOW", "1m"),
		IdempotencyTTL:  p.duration("IDEMPOTENCY_TTL", "24h"),
		LockWait:        p.duration("LOCK_WAIT", "5s"),

		KafkaBrokers: strings.TrimSpace(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "simulator.submissions"),

		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "simulator"),
			HTTPBucketsMS:    k.String("OBS_HTTP_BUCKETS_MS"),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplerRatio:     p.float("OBS_TRACING_SAMPLER_RATIO", 1),
		},
	}
	cfg.Ledger = p.ledger()
	cfg.Notify = p.notify()

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return cfg, nil
}

// LoadLedger reads only the ledger settings. Tools that touch the ledger
// alone use it so unrelated settings are not required.
func LoadLedger() (LedgerConfig, error) {
	p, err := newParser()
	if err != nil {
		return LedgerConfig{}, err
	}
	l := p.ledger()
	if len(p.errs) > 0 {
		return LedgerConfig{}, errors.Join(p.errs...)
	}
	return l, nil
}

func newParser() (*parser, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return &parser{k: k}, nil
}

type parser struct {
	k    *koanf.Koanf
	errs []error
}

func (p *parser) fail(key, reason string) {
	p.errs = append(p.errs, &Error{Key: key, Reason: reason})
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.k.String(key))
}

func (p *parser) require(key string) string {
	v := p.str(key)
	if v == "" {
		p.fail(key, "is required")
	}
	return v
}

func (p *parser) duration(key, fallback string) time.Duration {
	raw := p.str(key)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key, fmt.Sprintf("invalid duration %q", raw))
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	raw := p.str(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		p.fail(key, fmt.Sprintf("invalid non-negative integer %q", raw))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := p.str(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		p.fail(key, fmt.Sprintf("invalid number %q", raw))
		return fallback
	}
	return v
}

func (p *parser) money(key, fallback string) pricing.Money {
	raw := valueOrDefault(p.str(key), fallback)
	m, err := pricing.ParseMoney(raw)
	if err != nil {
		p.fail(key, err.Error())
		return pricing.MustParseMoney(fallback)
	}
	return m
}

func (p *parser) ledger() LedgerConfig {
	l := LedgerConfig{
		Backend:   strings.ToLower(valueOrDefault(p.str("LEDGER_BACKEND"), ledger.BackendSheets)),
		Timeout:   p.duration("LEDGER_TIMEOUT", "10s"),
		XLSXSheet: valueOrDefault(p.str("LEDGER_XLSX_SHEET"), "Simulations"),
	}
	policy, err := ledger.ParseDuplicatePolicy(p.str("LEDGER_DUPLICATE_POLICY"))
	if err != nil {
		p.fail("LEDGER_DUPLICATE_POLICY", err.Error())
	}
	l.DuplicatePolicy = policy

	tz := valueOrDefault(p.str("LEDGER_TIMEZONE"), "Europe/Paris")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		p.fail("LEDGER_TIMEZONE", err.Error())
		loc = time.UTC
	}
	l.Location = loc

	switch l.Backend {
	case ledger.BackendSheets:
		l.Sheets = ledger.SheetsConfig{
			SpreadsheetID: p.require("GOOGLE_SHEET_ID"),
			Tab:           valueOrDefault(p.str("GOOGLE_SHEET_TAB"), "Sheet1"),
		}
		creds := p.require("GOOGLE_SHEETS_CREDS")
		switch {
		case creds == "":
		case strings.HasPrefix(creds, "{"):
			if err := validateServiceAccount([]byte(creds)); err != nil {
				p.fail("GOOGLE_SHEETS_CREDS", err.Error())
			}
			l.Sheets.CredentialsJSON = []byte(creds)
		default:
			raw, err := os.ReadFile(creds)
			if err != nil {
				p.fail("GOOGLE_SHEETS_CREDS", "unreadable credentials file: "+err.Error())
			} else if err := validateServiceAccount(raw); err != nil {
				p.fail("GOOGLE_SHEETS_CREDS", err.Error())
			}
			l.Sheets.CredentialsFile = creds
		}
	case ledger.BackendXLSX:
		l.XLSXPath = p.require("LEDGER_XLSX_PATH")
	case ledger.BackendPostgres:
		l.DatabaseURL = p.require("DATABASE_URL")
	case ledger.BackendPebble:
		l.PebbleDir = p.require("LEDGER_PEBBLE_DIR")
	case ledger.BackendMemory:
	default:
		p.fail("LEDGER_BACKEND", fmt.Sprintf("unknown backend %q", l.Backend))
	}
	return l
}

func (p *parser) notify() NotifyConfig {
	n := NotifyConfig{
		Transport:          strings.ToLower(valueOrDefault(p.str("NOTIFY_TRANSPORT"), "smtp")),
		SMTPHost:           valueOrDefault(p.str("SMTP_HOST"), "smtp.gmail.com"),
		SMTPPort:           p.integer("SMTP_PORT", 587),
		Subject:            valueOrDefault(p.str("NOTIFY_EMAIL_SUBJECT"), "Opaline - Votre simulation et prochaines étapes"),
		TemplatePath:       p.str("NOTIFY_EMAIL_TEMPLATE_PATH"),
		Timeout:            p.duration("NOTIFY_TIMEOUT", "10s"),
		OnPersistFailure:   parseBool(p.str("NOTIFY_ON_PERSIST_FAILURE")),
		BreakerMinRequests: p.integer("NOTIFY_BREAKER_MIN_REQUESTS", 5),
		BreakerRatio:       p.float("NOTIFY_BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenFor:     p.duration("NOTIFY_BREAKER_OPEN_FOR", "30s"),
	}
	switch n.Transport {
	case "smtp":
		n.SMTPUsername = p.require("SMTP_USERNAME")
		n.SMTPPassword = p.require("SMTP_PASSWORD")
	case "outbox":
		n.SMTPUsername = p.str("SMTP_USERNAME")
	default:
		p.fail("NOTIFY_TRANSPORT", fmt.Sprintf("unknown transport %q", n.Transport))
	}
	n.From = valueOrDefault(p.str("NOTIFY_EMAIL_FROM"), n.SMTPUsername)
	if n.Transport == "smtp" && n.From != "" && !strings.Contains(n.From, "@") {
		p.fail("NOTIFY_EMAIL_FROM", fmt.Sprintf("invalid sender address %q", n.From))
	}
	return n
}

func validateServiceAccount(raw []byte) error {
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return errors.New("credentials are not valid JSON")
	}
	if key.Type != "service_account" || key.ClientEmail == "" || key.PrivateKey == "" {
		return errors.New("credentials are not a service account key")
	}
	return nil
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
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
