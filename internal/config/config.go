package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Vector-Gateway application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Catalog   CatalogConfig
	Rotator   RotatorConfig
	Postback  PostbackConfig
	Telegram  TelegramConfig
	VK        VKConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Geo       GeoConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// CatalogConfig points at the offer and rotator configuration files.
type CatalogConfig struct {
	OffersPath   string
	RotatorsPath string
}

// RotatorConfig parameterizes the variant selection strategy.
type RotatorConfig struct {
	// WarmupRounds is how many round-robin clicks every variant gets
	// before exploitation starts.
	WarmupRounds int
	// Epsilon is the exploration probability after warm-up.
	Epsilon float64
}

// PostbackConfig configures conversion postback intake.
type PostbackConfig struct {
	// Secret is the shared key postbacks must present.
	Secret string
}

// TelegramConfig configures conversion alerts. Alerts are disabled when
// either field is empty.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// VKConfig configures the VK ads OAuth flow and stats pulls.
type VKConfig struct {
	AppID        string
	AppSecret    string
	RedirectURI  string
	AccessToken  string
	AdsAccountID string
	SetupSecret  string
	CronSecret   string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled       bool
	TrackingRPS   float64
	TrackingBurst int
	MgmtRPS       float64
	MgmtBurst     int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP enrichment of click events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("VECTOR_GW_HTTP_ADDR", ":8080"),
			Env:             getEnv("VECTOR_GW_ENV", "development"),
			ShutdownTimeout: getDurationEnv("VECTOR_GW_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("VECTOR_GW_DB_ENABLED", false),
			Host:     getEnv("VECTOR_GW_DB_HOST", "localhost"),
			Port:     getIntEnv("VECTOR_GW_DB_PORT", 5432),
			User:     getEnv("VECTOR_GW_DB_USER", "vectorgw"),
			Password: getEnv("VECTOR_GW_DB_PASSWORD", "vectorgw_secret"),
			DBName:   getEnv("VECTOR_GW_DB_NAME", "vectorgw"),
			SSLMode:  getEnv("VECTOR_GW_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("VECTOR_GW_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("VECTOR_GW_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("VECTOR_GW_REDIS_ENABLED", false),
			Addr:     getEnv("VECTOR_GW_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("VECTOR_GW_REDIS_PASSWORD", ""),
			DB:       getIntEnv("VECTOR_GW_REDIS_DB", 0),
		},
		Catalog: CatalogConfig{
			OffersPath:   getEnv("VECTOR_GW_OFFERS_PATH", "config/offers.json"),
			RotatorsPath: getEnv("VECTOR_GW_ROTATORS_PATH", "config/rotators.json"),
		},
		Rotator: RotatorConfig{
			WarmupRounds: getIntEnv("VECTOR_GW_ROTATOR_WARMUP_ROUNDS", 10),
			Epsilon:      getFloatEnv("VECTOR_GW_ROTATOR_EPSILON", 0.2),
		},
		Postback: PostbackConfig{
			Secret: getEnv("VECTOR_GW_POSTBACK_SECRET", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("VECTOR_GW_TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("VECTOR_GW_TELEGRAM_CHAT_ID", ""),
		},
		VK: VKConfig{
			AppID:        getEnv("VECTOR_GW_VK_APP_ID", ""),
			AppSecret:    getEnv("VECTOR_GW_VK_APP_SECRET", ""),
			RedirectURI:  getEnv("VECTOR_GW_VK_REDIRECT_URI", ""),
			AccessToken:  getEnv("VECTOR_GW_VK_ACCESS_TOKEN", ""),
			AdsAccountID: getEnv("VECTOR_GW_VK_ADS_ACCOUNT_ID", ""),
			SetupSecret:  getEnv("VECTOR_GW_OAUTH_SETUP_SECRET", ""),
			CronSecret:   getEnv("VECTOR_GW_CRON_SECRET", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("VECTOR_GW_AUTH_ENABLED", true),
			MasterKey: getEnv("VECTOR_GW_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("VECTOR_GW_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/click", "/postback", "/oauth/", "/cron/"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBoolEnv("VECTOR_GW_RATE_LIMIT_ENABLED", true),
			TrackingRPS:   getFloatEnv("VECTOR_GW_RATE_LIMIT_TRACKING_RPS", 1000),
			TrackingBurst: getIntEnv("VECTOR_GW_RATE_LIMIT_TRACKING_BURST", 100),
			MgmtRPS:       getFloatEnv("VECTOR_GW_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst:     getIntEnv("VECTOR_GW_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("VECTOR_GW_LOG_LEVEL", "info"),
			Format: getEnv("VECTOR_GW_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("VECTOR_GW_METRICS_ENABLED", true),
			Path:    getEnv("VECTOR_GW_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("VECTOR_GW_GEO_ENABLED", false),
			DatabasePath: getEnv("VECTOR_GW_GEO_DB_PATH", "/app/data/GeoLite2-Country.mmdb"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Postback.Secret == "" {
		return fmt.Errorf("VECTOR_GW_POSTBACK_SECRET is required")
	}
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("VECTOR_GW_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Rotator.WarmupRounds < 1 {
		return fmt.Errorf("VECTOR_GW_ROTATOR_WARMUP_ROUNDS must be positive")
	}
	if c.Rotator.Epsilon < 0 || c.Rotator.Epsilon > 1 {
		return fmt.Errorf("VECTOR_GW_ROTATOR_EPSILON must be in [0, 1]")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
