package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/pkg/enums"
)

const (
	// EnvPrefix is passed to envconfig; variable names already carry the
	// CONSERTAJA_ prefix explicitly so the prefix itself stays empty.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Admin    AdminConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Referral ReferralConfig
	Alerts   AlertsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CONSERTAJA_APP_ENV" required:"true"`
	Port         string `envconfig:"CONSERTAJA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CONSERTAJA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CONSERTAJA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CONSERTAJA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"CONSERTAJA_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"CONSERTAJA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CONSERTAJA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONSERTAJA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONSERTAJA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// AutoMigrate only takes effect in dev; prod schema changes go through
	// cmd/migrate.
	AutoMigrate bool `envconfig:"CONSERTAJA_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONSERTAJA_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"CONSERTAJA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CONSERTAJA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CONSERTAJA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONSERTAJA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CONSERTAJA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminConfig guards the operator-facing metrics/alerts API.
type AdminConfig struct {
	JWTSecret string `envconfig:"CONSERTAJA_ADMIN_JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"CONSERTAJA_ADMIN_JWT_ISSUER" default:"consertaja"`
}

// GatewayConfig configures the external payment gateway adapter.
type GatewayConfig struct {
	BaseURL       string        `envconfig:"CONSERTAJA_GATEWAY_BASE_URL" required:"true"`
	APIKey        string        `envconfig:"CONSERTAJA_GATEWAY_API_KEY" required:"true"`
	WebhookSecret string        `envconfig:"CONSERTAJA_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"CONSERTAJA_GATEWAY_TIMEOUT" default:"10s"`
	MaxRetries    int           `envconfig:"CONSERTAJA_GATEWAY_MAX_RETRIES" default:"3"`
	RetryBackoff  time.Duration `envconfig:"CONSERTAJA_GATEWAY_RETRY_BACKOFF" default:"500ms"`

	// DedupTTL bounds the webhook dedup window; the gateway's own retry
	// window is shorter, so forgotten ids can no longer be redelivered.
	DedupTTL time.Duration `envconfig:"CONSERTAJA_GATEWAY_DEDUP_TTL" default:"168h"`
}

// BillingConfig carries the plan catalog and lifecycle windows.
type BillingConfig struct {
	TrialDays     int           `envconfig:"CONSERTAJA_BILLING_TRIAL_DAYS" default:"7"`
	GraceWindow   time.Duration `envconfig:"CONSERTAJA_BILLING_GRACE_WINDOW" default:"120h"`
	MonthlyAmount string        `envconfig:"CONSERTAJA_BILLING_MONTHLY_AMOUNT" default:"150.00"`
	YearlyAmount  string        `envconfig:"CONSERTAJA_BILLING_YEARLY_AMOUNT" default:"1440.00"`
	Currency      string        `envconfig:"CONSERTAJA_BILLING_CURRENCY" default:"BRL"`
}

func (b BillingConfig) validate() error {
	if _, err := decimal.NewFromString(b.MonthlyAmount); err != nil {
		return fmt.Errorf("invalid monthly amount %q: %w", b.MonthlyAmount, err)
	}
	if _, err := decimal.NewFromString(b.YearlyAmount); err != nil {
		return fmt.Errorf("invalid yearly amount %q: %w", b.YearlyAmount, err)
	}
	if b.TrialDays <= 0 {
		return fmt.Errorf("trial days must be positive")
	}
	return nil
}

// AmountFor returns the catalog amount for the requested cycle.
func (b BillingConfig) AmountFor(cycle enums.BillingCycle) (decimal.Decimal, error) {
	switch cycle {
	case enums.BillingCycleMonthly:
		return decimal.NewFromString(b.MonthlyAmount)
	case enums.BillingCycleYearly:
		return decimal.NewFromString(b.YearlyAmount)
	default:
		return decimal.Zero, fmt.Errorf("no catalog amount for cycle %q", cycle)
	}
}

// TrialLength returns the configured trial window.
func (b BillingConfig) TrialLength() time.Duration {
	return time.Duration(b.TrialDays) * 24 * time.Hour
}

// ReferralConfig tunes the referral-bonus program.
type ReferralConfig struct {
	QualifyDays int `envconfig:"CONSERTAJA_REFERRAL_QUALIFY_DAYS" default:"30"`
	BonusMonths int `envconfig:"CONSERTAJA_REFERRAL_BONUS_MONTHS" default:"1"`
	ScanLimit   int `envconfig:"CONSERTAJA_REFERRAL_SCAN_LIMIT" default:"500"`
}

// QualifyWindow returns the continuous-activity window a referred tenant
// must sustain before the referrer earns a bonus.
func (r ReferralConfig) QualifyWindow() time.Duration {
	return time.Duration(r.QualifyDays) * 24 * time.Hour
}

// AlertsConfig tunes operator alert thresholds.
type AlertsConfig struct {
	TrialWarningDays   int     `envconfig:"CONSERTAJA_ALERTS_TRIAL_WARNING_DAYS" default:"3"`
	ErrorWarningRatio  float64 `envconfig:"CONSERTAJA_ALERTS_ERROR_WARNING_RATIO" default:"2.0"`
	ErrorCriticalRatio float64 `envconfig:"CONSERTAJA_ALERTS_ERROR_CRITICAL_RATIO" default:"5.0"`
}
