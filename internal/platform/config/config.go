package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const devSecret = "dev-secret-change-me-0123456789abcdef"

// Config is loaded once at startup and passed down explicitly.
type Config struct {
	Addr           string   `env:"GHOSTPASS_ADDR" envDefault:":8080"`
	Environment    string   `env:"GHOSTPASS_ENV" envDefault:"development"`
	LogLevel       string   `env:"GHOSTPASS_LOG_LEVEL" envDefault:"info"`
	TrustedProxies []string `env:"GHOSTPASS_TRUSTED_PROXIES" envSeparator:","`
	AdminToken     string   `env:"GHOSTPASS_ADMIN_TOKEN"`

	Token  TokenConfig
	View   ViewConfig
	Verify VerifyConfig
	Audit  AuditConfig

	DatabaseURL string `env:"DATABASE_URL"`
	Redis       RedisConfig
	Kafka       KafkaConfig

	PolicyFile      string `env:"GHOSTPASS_POLICY_FILE"`
	StationKeysFile string `env:"GHOSTPASS_STATION_KEYS_FILE"`

	// Loaded from PolicyFile and StationKeysFile.
	Policy      *Policy           `env:"-"`
	StationKeys map[string]string `env:"-"`
}

// TokenConfig holds minting policy.
type TokenConfig struct {
	SigningSecret string          `env:"GHOSTPASS_TOKEN_SECRET"`
	StandardTTL   time.Duration   `env:"GHOSTPASS_TTL_STANDARD" envDefault:"30s"`
	MasterTTL     time.Duration   `env:"GHOSTPASS_TTL_MASTER" envDefault:"24h"`
	RotationLead  time.Duration   `env:"GHOSTPASS_ROTATION_LEAD" envDefault:"5s"`
	LockThreshold decimal.Decimal `env:"GHOSTPASS_LOCK_THRESHOLD" envDefault:"5.00"`
}

// ViewConfig holds browser view-session policy.
type ViewConfig struct {
	Secret string        `env:"GHOSTPASS_VIEW_SECRET"`
	TTL    time.Duration `env:"GHOSTPASS_VIEW_TTL" envDefault:"3m"`
}

// VerifyConfig holds door-side verification policy.
type VerifyConfig struct {
	Budget             time.Duration `env:"GHOSTPASS_VERIFY_BUDGET" envDefault:"800ms"`
	ClockSkewTolerance time.Duration `env:"GHOSTPASS_CLOCK_SKEW_TOLERANCE" envDefault:"5s"`
}

type AuditConfig struct {
	RetryAttempts int           `env:"GHOSTPASS_AUDIT_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff  time.Duration `env:"GHOSTPASS_AUDIT_RETRY_BACKOFF" envDefault:"20ms"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"2s"`
}

type KafkaConfig struct {
	Brokers    string `env:"KAFKA_BROKERS"`
	ShiftTopic string `env:"KAFKA_SHIFT_TOPIC" envDefault:"ops.shift-events"`
}

// Load reads an optional dotenv file, parses the environment, loads the
// policy files and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		// Missing dotenv files are normal outside local development.
		_ = godotenv.Load(envFiles...)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDevDefaults()

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	} else {
		cfg.Policy = EmptyPolicy()
	}

	if cfg.StationKeysFile != "" {
		keys, err := LoadStationKeys(cfg.StationKeysFile)
		if err != nil {
			return nil, err
		}
		cfg.StationKeys = keys
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) applyDevDefaults() {
	if c.IsProduction() {
		return
	}
	if c.Token.SigningSecret == "" {
		c.Token.SigningSecret = devSecret
	}
	if c.View.Secret == "" {
		c.View.Secret = devSecret + "-view"
	}
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Token.SigningSecret) < 32 {
		errs = append(errs, errors.New("token signing secret must be at least 32 bytes"))
	}
	if len(c.View.Secret) < 32 {
		errs = append(errs, errors.New("view secret must be at least 32 bytes"))
	}
	if c.Token.SigningSecret == c.View.Secret {
		errs = append(errs, errors.New("token and view secrets must differ"))
	}
	if c.Token.StandardTTL <= 0 {
		errs = append(errs, errors.New("standard ttl must be positive"))
	}
	if c.Token.MasterTTL < c.Token.StandardTTL {
		errs = append(errs, errors.New("master ttl must not be shorter than standard ttl"))
	}
	if c.Token.RotationLead < 0 || c.Token.RotationLead >= c.Token.StandardTTL {
		errs = append(errs, errors.New("rotation lead must be within the standard ttl"))
	}
	if c.Token.LockThreshold.IsNegative() {
		errs = append(errs, errors.New("lock threshold must not be negative"))
	}
	if c.View.TTL <= 0 {
		errs = append(errs, errors.New("view ttl must be positive"))
	}
	if c.Verify.Budget <= 0 || c.Verify.Budget >= 5*time.Second {
		errs = append(errs, errors.New("verify budget must be between 0 and 5s"))
	}
	if c.Verify.ClockSkewTolerance < 0 {
		errs = append(errs, errors.New("clock skew tolerance must not be negative"))
	}
	if c.Audit.RetryAttempts < 1 {
		errs = append(errs, errors.New("audit retry attempts must be at least 1"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
