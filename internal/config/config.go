// Package config loads and validates the back-office configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the NIA_ prefix (e.g., NIA_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a config.yaml
// locally and with pure environment variables in containers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role resolution strategies for auth.role_resolution.
const (
	RoleResolutionHighestLevel = "highest_level"
	RoleResolutionUnion        = "union"
)

// Config holds all application configuration
type Config struct {
	// Environment is "production", "staging" or "development". Anything but
	// production may expose error details when VerboseErrors is set.
	Environment   string              `mapstructure:"environment"`
	VerboseErrors bool                `mapstructure:"verbose_errors"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Session       SessionConfig       `mapstructure:"session"`
	TwoFactor     TwoFactorConfig     `mapstructure:"two_factor"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// IsProduction reports whether the process runs in the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ExposeErrorDetails reports whether 500 responses may carry internal error text.
// Production never does, regardless of VerboseErrors.
func (c *Config) ExposeErrorDetails() bool {
	return c.VerboseErrors && !c.IsProduction()
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
	// QueryTimeout bounds every credential, 2FA and session query.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig holds the optional Redis connection used for distributed rate
// limiting and security monitor counters.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds login and token settings
type AuthConfig struct {
	// TokenTTL is the lifetime of the admin JWT.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// PublicTokenTTL is the lifetime of the cliente/proprietario JWT.
	PublicTokenTTL time.Duration `mapstructure:"public_token_ttl"`
	// CookieName is the httpOnly cookie carrying the admin token.
	CookieName string `mapstructure:"cookie_name"`
	// CookieMaxAge is intentionally longer than session.ttl.
	CookieMaxAge time.Duration `mapstructure:"cookie_max_age"`
	// ResolvePerRequest re-resolves permissions on every request instead of
	// trusting the snapshot embedded in the token.
	ResolvePerRequest bool `mapstructure:"resolve_per_request"`
	// RoleResolution selects which role assignments feed the resolver:
	// "highest_level" or "union".
	RoleResolution string `mapstructure:"role_resolution"`
	// SystemRoleName is the role that implicitly holds ADMIN on every feature.
	SystemRoleName string `mapstructure:"system_role_name"`
}

// SessionConfig holds session registry settings
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
}

// TwoFactorConfig holds step-up verification settings
type TwoFactorConfig struct {
	CodeLength      int           `mapstructure:"code_length"`
	CodeTTL         time.Duration `mapstructure:"code_ttl"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
	// TrustedProxies lists the IPs or CIDRs whose forwarding headers are
	// believed. Empty means the socket address is always the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// LoginPerMinute applies to both login endpoints, keyed by client IP.
	LoginPerMinute int `mapstructure:"login_per_minute"`
	LoginBurst     int `mapstructure:"login_burst"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// SinkTimeout bounds each sink write.
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	// RetentionDays is the default purge window.
	RetentionDays int             `mapstructure:"retention_days"`
	AutoPurge     AutoPurgeConfig `mapstructure:"auto_purge"`
	// MonitorBufferSize is the number of security events kept in memory.
	MonitorBufferSize int `mapstructure:"monitor_buffer_size"`
	// Shippers forward every audit entry to external destinations.
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
	// ArchivePath is the JSON-lines file purged audit rows are copied to when a
	// purge asks for an archive. Empty disables archiving.
	ArchivePath string `mapstructure:"archive_path"`
}

// AutoPurgeConfig schedules the unattended purge job
type AutoPurgeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// AuditShipperConfig holds configuration for an audit log shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// NotificationsConfig holds outbound email settings used for 2FA codes
type NotificationsConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds SMTP server connection details
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// bindEnvVars explicitly binds every config key to its NIA_ environment variable.
// AutomaticEnv only resolves keys viper already knows about, so keys without a
// default or a YAML entry would otherwise never be read from the environment.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"environment",
		"verbose_errors",

		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",
		"database.query_timeout",

		"redis.enabled",
		"redis.address",
		"redis.password",
		"redis.db",

		"auth.token_ttl",
		"auth.public_token_ttl",
		"auth.cookie_name",
		"auth.cookie_max_age",
		"auth.resolve_per_request",
		"auth.role_resolution",
		"auth.system_role_name",

		"session.ttl",
		"session.default_page_size",
		"session.max_page_size",

		"two_factor.code_length",
		"two_factor.code_ttl",
		"two_factor.max_attempts",
		"two_factor.send_timeout",
		"two_factor.cleanup_interval",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.login_per_minute",
		"security.rate_limiting.login_burst",
		"security.trusted_proxies",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		"logging.level",
		"logging.format",

		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		"audit.sink_timeout",
		"audit.retention_days",
		"audit.auto_purge.enabled",
		"audit.auto_purge.interval",
		"audit.monitor_buffer_size",
		"audit.archive_path",

		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.smtp.use_tls",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// newViper builds a viper instance with defaults, the config file (if any) and
// environment bindings applied.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/admin-core")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("NIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// decode unmarshals and validates a Config from a prepared viper instance.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("verbose_errors", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "net_imobiliaria")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.public_token_ttl", "24h")
	v.SetDefault("auth.cookie_name", "auth_token")
	v.SetDefault("auth.cookie_max_age", "168h")
	v.SetDefault("auth.resolve_per_request", false)
	v.SetDefault("auth.role_resolution", RoleResolutionHighestLevel)
	v.SetDefault("auth.system_role_name", "Super Admin")

	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.default_page_size", 50)
	v.SetDefault("session.max_page_size", 100)

	v.SetDefault("two_factor.code_length", 6)
	v.SetDefault("two_factor.code_ttl", "10m")
	v.SetDefault("two_factor.max_attempts", 5)
	v.SetDefault("two_factor.send_timeout", "10s")
	v.SetDefault("two_factor.cleanup_interval", "1h")

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.login_per_minute", 10)
	v.SetDefault("security.rate_limiting.login_burst", 5)
	v.SetDefault("security.trusted_proxies", []string{})
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "admin-core")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("audit.sink_timeout", "5s")
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.auto_purge.enabled", false)
	v.SetDefault("audit.auto_purge.interval", "24h")
	v.SetDefault("audit.monitor_buffer_size", 1000)
	v.SetDefault("audit.archive_path", "")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)
}

// expandEnv expands ${VAR} references inside secret values.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	switch c.Auth.RoleResolution {
	case RoleResolutionHighestLevel, RoleResolutionUnion:
	default:
		return fmt.Errorf("invalid auth.role_resolution: %q (must be %s or %s)",
			c.Auth.RoleResolution, RoleResolutionHighestLevel, RoleResolutionUnion)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.MaxPageSize < 1 || c.Session.DefaultPageSize < 1 || c.Session.DefaultPageSize > c.Session.MaxPageSize {
		return fmt.Errorf("invalid session page sizes: default=%d max=%d",
			c.Session.DefaultPageSize, c.Session.MaxPageSize)
	}

	if c.TwoFactor.CodeLength < 4 || c.TwoFactor.CodeLength > 10 {
		return fmt.Errorf("two_factor.code_length must be between 4 and 10, got %d", c.TwoFactor.CodeLength)
	}
	if c.TwoFactor.MaxAttempts < 1 {
		return fmt.Errorf("two_factor.max_attempts must be at least 1")
	}
	if c.TwoFactor.CodeTTL <= 0 {
		return fmt.Errorf("two_factor.code_ttl must be positive")
	}

	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retention_days must be at least 1")
	}

	if c.Notifications.Enabled && c.Notifications.SMTP.Host == "" {
		return fmt.Errorf("notifications.smtp.host is required when notifications are enabled")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
