package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"DSC_ENV"`
	HTTPAddr string `mapstructure:"DSC_HTTP_ADDR"`

	Engine   EngineConfig   `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Broker   BrokerConfig   `mapstructure:",squash"`
	Oracle   OracleConfig   `mapstructure:",squash"`
	Prices   PriceConfig    `mapstructure:",squash"`
	Jobs     JobsConfig     `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`

	// Loaded from the assets file, or DefaultAssets when the file does not exist.
	Assets     []AssetEntry `mapstructure:"-"`
	AssetsPath string       `mapstructure:"-"`
}

type EngineConfig struct {
	AssetsFile               string `mapstructure:"DSC_ASSETS_FILE"`
	IssuerID                 string `mapstructure:"DSC_ISSUER_ID"`
	Account                  string `mapstructure:"DSC_ENGINE_ACCOUNT"`
	RequireHealthImprovement bool   `mapstructure:"DSC_REQUIRE_HEALTH_IMPROVEMENT"`
}

type DBConfig struct {
	// Empty keeps the journal in the key-value store.
	PostgresDSN string `mapstructure:"DSC_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr string `mapstructure:"DSC_REDIS_ADDR"`
}

type BrokerConfig struct {
	// Empty disables publishing to NATS.
	NATSURL       string `mapstructure:"DSC_NATS_URL"`
	Stream        string `mapstructure:"DSC_NATS_STREAM"`
	SubjectPrefix string `mapstructure:"DSC_NATS_SUBJECT_PREFIX"`
}

type OracleConfig struct {
	MaxAge time.Duration `mapstructure:"DSC_ORACLE_MAX_AGE"`
}

type PriceConfig struct {
	Provider       string        `mapstructure:"DSC_PRICE_PROVIDER"`        // "static", "mock", "binance"
	RetryInterval  time.Duration `mapstructure:"DSC_PRICE_RETRY_INTERVAL"`  // Retry failed provider
	MockVolatility float64       `mapstructure:"DSC_PRICE_MOCK_VOLATILITY"` // Mock data volatility
}

type JobsConfig struct {
	MonitorInterval time.Duration `mapstructure:"DSC_MONITOR_INTERVAL"`
	JournalBuffer   int           `mapstructure:"DSC_JOURNAL_BUFFER"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"DSC_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"DSC_CORS_ALLOWED_ORIGINS"`
}

const (
	ProviderStatic  = "static"
	ProviderMock    = "mock"
	ProviderBinance = "binance"
)

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("DSC_ENV", "dev")
	v.SetDefault("DSC_HTTP_ADDR", ":8080")
	v.SetDefault("DSC_ASSETS_FILE", "assets.json")
	v.SetDefault("DSC_ISSUER_ID", "DSC")
	v.SetDefault("DSC_ENGINE_ACCOUNT", "dsc-engine")
	v.SetDefault("DSC_REQUIRE_HEALTH_IMPROVEMENT", false)
	v.SetDefault("DSC_POSTGRES_DSN", "")
	v.SetDefault("DSC_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("DSC_NATS_URL", "")
	v.SetDefault("DSC_NATS_STREAM", "DSC_EVENTS")
	v.SetDefault("DSC_NATS_SUBJECT_PREFIX", "dsc.events")
	v.SetDefault("DSC_ORACLE_MAX_AGE", "3h")
	v.SetDefault("DSC_PRICE_PROVIDER", ProviderMock)
	v.SetDefault("DSC_PRICE_RETRY_INTERVAL", "5s")
	v.SetDefault("DSC_PRICE_MOCK_VOLATILITY", 0.002)
	v.SetDefault("DSC_MONITOR_INTERVAL", "15s")
	v.SetDefault("DSC_JOURNAL_BUFFER", 1024)
	v.SetDefault("DSC_RATE_LIMIT_RPM", 120)
	v.SetDefault("DSC_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Comma-separated values
	if origins := v.GetString("DSC_CORS_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		v.Set("DSC_CORS_ALLOWED_ORIGINS", parts)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Prices.Provider = strings.ToLower(strings.TrimSpace(cfg.Prices.Provider))

	if err := cfg.loadAssets(); err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadAssets reads the configured assets file. A missing file falls back to the
// built-in table.
func (c *Config) loadAssets() error {
	path := strings.TrimSpace(c.Engine.AssetsFile)
	if path == "" {
		c.Assets = DefaultAssets()
		return nil
	}

	file, err := ReadAssetsFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.Assets = DefaultAssets()
			return nil
		}
		return fmt.Errorf("error reading assets file at %s: %w", path, err)
	}
	c.Assets = file.Assets
	c.AssetsPath = path
	return nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("invalid DSC_ENV %q (must be dev, test, or prod)", c.Env)
	}
	if strings.TrimSpace(c.Engine.IssuerID) == "" {
		return fmt.Errorf("DSC_ISSUER_ID is required")
	}
	if strings.TrimSpace(c.Engine.Account) == "" {
		return fmt.Errorf("DSC_ENGINE_ACCOUNT is required")
	}
	switch c.Prices.Provider {
	case ProviderStatic, ProviderMock, ProviderBinance:
	default:
		return fmt.Errorf("invalid DSC_PRICE_PROVIDER %q (must be static, mock, or binance)", c.Prices.Provider)
	}
	if c.Oracle.MaxAge < 0 {
		return fmt.Errorf("DSC_ORACLE_MAX_AGE must not be negative")
	}
	if c.Prices.RetryInterval <= 0 {
		return fmt.Errorf("DSC_PRICE_RETRY_INTERVAL must be positive")
	}
	if c.Jobs.MonitorInterval <= 0 {
		return fmt.Errorf("DSC_MONITOR_INTERVAL must be positive")
	}
	if c.Jobs.JournalBuffer <= 0 {
		return fmt.Errorf("DSC_JOURNAL_BUFFER must be positive")
	}
	if c.Security.RateLimitRPM < 0 {
		return fmt.Errorf("DSC_RATE_LIMIT_RPM must not be negative")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("no collateral assets configured")
	}
	for _, a := range c.Assets {
		if err := a.validate(); err != nil {
			return err
		}
	}
	if c.Prices.Provider == ProviderStatic {
		for _, a := range c.Assets {
			if a.InitialPrice == "" {
				return fmt.Errorf("asset %s needs an initial_price with the static price provider", a.ID)
			}
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
