package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Local      LocalConfig
	Auth       AuthConfig
	Generation GenerationConfig
	Governor   GovernorConfig
	RateLimit  RateLimitConfig
	Realtime   RealtimeConfig
	Logging    LoggingConfig
	Telemetry  TelemetryConfig
}

// DatabaseConfig holds the remote backend configuration.
// An empty URL means the remote backend is not configured.
type DatabaseConfig struct {
	URL string
}

// Configured reports whether a remote backend is available.
func (d DatabaseConfig) Configured() bool {
	return d.URL != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL       string
	Enabled   bool
	Namespace string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	Host string
}

// LocalConfig holds the on-device store configuration
type LocalConfig struct {
	Path string // SQLite file, ":memory:" for ephemeral
}

// AuthConfig holds the authentication collaborator configuration
type AuthConfig struct {
	SupabaseURL string
	SupabaseKey string
	JWTSecret   string // verifies tokens offline when set
	JWTIssuer   string
}

// Enabled reports whether token verification is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || (a.SupabaseURL != "" && a.SupabaseKey != "")
}

// GenerationConfig holds the hosted AI engine endpoint. An empty URL
// leaves only the template engine.
type GenerationConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// GovernorConfig holds per operation class deadlines for remote calls
type GovernorConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StatsTimeout time.Duration
	Linger       time.Duration // how long a settled entry keeps absorbing callers
}

// RateLimitConfig holds the template generation quota
type RateLimitConfig struct {
	Quota  int
	Window time.Duration
}

// RealtimeConfig holds change-stream and presence settings
type RealtimeConfig struct {
	FeedWindow        int
	HeartbeatInterval time.Duration
	PresenceTTL       time.Duration
	ConnectingTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("THOUGHTS")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.thoughtsync")
	viper.AddConfigPath("/etc/thoughtsync")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL: getString("database_url", ""),
		},
		Redis: RedisConfig{
			URL:       getString("redis_url", ""),
			Enabled:   getString("redis_url", "") != "",
			Namespace: getString("redis_namespace", "thoughts"),
		},
		Server: ServerConfig{
			Port: getInt("http_server_port", 8080),
			Host: getString("http_server_host", "0.0.0.0"),
		},
		Local: LocalConfig{
			Path: getString("local_store_path", "thoughts-local.db"),
		},
		Auth: AuthConfig{
			SupabaseURL: getString("supabase_url", ""),
			SupabaseKey: getString("supabase_service_role_key", ""),
			JWTSecret:   getString("supabase_jwt_secret", ""),
			JWTIssuer:   getString("supabase_jwt_issuer", ""),
		},
		Generation: GenerationConfig{
			URL:     getString("generation_url", ""),
			APIKey:  getString("generation_api_key", ""),
			Timeout: getDuration("generation_timeout", 30*time.Second),
		},
		Governor: GovernorConfig{
			ReadTimeout:  getDuration("governor_read_timeout", 45*time.Second),
			WriteTimeout: getDuration("governor_write_timeout", 30*time.Second),
			StatsTimeout: getDuration("governor_stats_timeout", 30*time.Second),
			Linger:       getDuration("governor_linger", time.Second),
		},
		RateLimit: RateLimitConfig{
			Quota:  getInt("rate_limit_quota", 5),
			Window: getDuration("rate_limit_window", time.Minute),
		},
		Realtime: RealtimeConfig{
			FeedWindow:        getInt("feed_window", 20),
			HeartbeatInterval: getDuration("presence_heartbeat_interval", 30*time.Second),
			PresenceTTL:       getDuration("presence_ttl", 90*time.Second),
			ConnectingTimeout: getDuration("realtime_connecting_timeout", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", false),
			JaegerURL:         getString("jaeger_url", ""),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "thoughtsync"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("http_server_port", 8080)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("local_store_path", "thoughts-local.db")
	viper.SetDefault("redis_namespace", "thoughts")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("rate_limit_quota", 5)
	viper.SetDefault("rate_limit_window", "60s")
	viper.SetDefault("feed_window", 20)
	viper.SetDefault("telemetry_enabled", false)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "thoughtsync")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv(envKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv(envKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

func envKey(key string) string {
	return "THOUGHTS_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Governor.ReadTimeout <= 0 || c.Governor.WriteTimeout <= 0 || c.Governor.StatsTimeout <= 0 {
		return fmt.Errorf("governor timeouts must be positive")
	}
	if c.Governor.Linger < 0 {
		return fmt.Errorf("governor_linger must not be negative")
	}
	if c.RateLimit.Quota < 1 {
		return fmt.Errorf("rate_limit_quota must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.Realtime.FeedWindow < 1 {
		return fmt.Errorf("feed_window must be at least 1")
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence_heartbeat_interval must be positive")
	}
	if c.Realtime.PresenceTTL < c.Realtime.HeartbeatInterval {
		return fmt.Errorf("presence_ttl must not be shorter than the heartbeat interval")
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local_store_path is required")
	}
	return nil
}
