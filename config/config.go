package config

import (
	"fmt"
	"strings"
	"time"

	"docvault/features"

	"github.com/spf13/viper"
)

// Config holds application configuration for the DocVault server and tools
type Config struct {
	// Service identification
	Service ServiceConfig `mapstructure:"service"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Document and artifact storage
	Store StoreConfig `mapstructure:"store"`

	// Credential store (key pairs, certificates, trusted root)
	Credentials CredentialsConfig `mapstructure:"credentials"`

	// Database configuration (postgres metadata backend)
	Database DatabaseConfig `mapstructure:"database"`

	// Authorization decision cache
	Cache CacheConfig `mapstructure:"cache"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Security configuration
	Security SecurityConfig `mapstructure:"security"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability"`

	// Admin API configuration
	Admin AdminConfig `mapstructure:"admin"`

	// Client-side settings (checkout cache)
	Client ClientConfig `mapstructure:"client"`
}

// ServiceConfig identifies the service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // dev, staging, production
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	GracefulStop time.Duration `mapstructure:"graceful_stop"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig holds TLS/SSL settings for the transport collaborator
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// StoreConfig holds document store settings
type StoreConfig struct {
	// ArtifactRoot is the directory holding sealed bodies and their
	// wrapped-key / signature side files.
	ArtifactRoot string `mapstructure:"artifact_root"`

	// MetadataBackend selects the metadata repository: memory or postgres.
	MetadataBackend string `mapstructure:"metadata_backend"`

	// SeedSampleData loads demo principals and documents at startup.
	SeedSampleData bool   `mapstructure:"seed_sample_data"`
	SeedDataPath   string `mapstructure:"seed_data_path"`
}

// CredentialsConfig locates the PEM credential store used by the identity
// provider. Each principal has <name>.key and <name>.crt under StorePath;
// the trusted root lives in root.crt.
type CredentialsConfig struct {
	StorePath       string               `mapstructure:"store_path"`
	ServerPrincipal string               `mapstructure:"server_principal"`
	External        ExternalSourceConfig `mapstructure:"external"`
}

// ExternalSourceConfig controls loading the server key pair from an external
// secret source instead of the local credential store.
type ExternalSourceConfig struct {
	Enabled bool                          `mapstructure:"enabled"`
	Type    string                        `mapstructure:"type"` // awsSecretsManager
	AWS     AWSSecretsManagerSourceConfig `mapstructure:"awsSecretsManager"`
}

// AWSSecretsManagerSourceConfig configures AWS secrets lookups for PEM blobs
type AWSSecretsManagerSourceConfig struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	SecretName     string `mapstructure:"secret_name"`
	SecretKeyField string `mapstructure:"secretKeyField"`
	SecretCrtField string `mapstructure:"secretCrtField"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ConnString builds a lib/pq connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, d.SSLMode)
}

// CacheConfig holds authorization decision cache settings
type CacheConfig struct {
	Type  string        `mapstructure:"type"` // memory, redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // Prometheus endpoint
	Path    string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Provider    string `mapstructure:"provider"` // otlp
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// AdminConfig holds settings for the read-only admin HTTP API
type AdminConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ClientConfig holds client-side settings
type ClientConfig struct {
	ServerAddress string        `mapstructure:"server_address"`
	CacheDir      string        `mapstructure:"cache_dir"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// Load loads configuration with precedence: environment variables over
// config file over defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("docvault")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/docvault/")
		v.AddConfigPath("$HOME/.docvault")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DOCVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	applyFeatureFlags(&cfg)

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.name", "docvault")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.graceful_stop", "30s")
	v.SetDefault("server.tls.enabled", false)

	// Store defaults
	v.SetDefault("store.artifact_root", "./data/documents")
	v.SetDefault("store.metadata_backend", "memory")
	v.SetDefault("store.seed_sample_data", false)
	v.SetDefault("store.seed_data_path", "")

	// Credential store defaults
	v.SetDefault("credentials.store_path", "./certs")
	v.SetDefault("credentials.server_principal", "server")
	v.SetDefault("credentials.external.enabled", false)
	v.SetDefault("credentials.external.type", "awsSecretsManager")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "docvault")
	v.SetDefault("database.user", "docvault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "docvault:authz:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", false)
	v.SetDefault("security.rate_limiting.requests_per_min", 600)
	v.SetDefault("security.rate_limiting.burst", 30)

	// Observability defaults
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.address", ":9090")
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.provider", "otlp")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// Admin API defaults
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.address", ":8089")
	v.SetDefault("admin.allowed_origins", []string{"http://localhost:3000"})

	// Client defaults
	v.SetDefault("client.server_address", "localhost:8088")
	v.SetDefault("client.cache_dir", "./data/checkout")
	v.SetDefault("client.dial_timeout", "10s")
}

// validateConfig performs basic validation on the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Store.MetadataBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown metadata backend %q (expected memory or postgres)", cfg.Store.MetadataBackend)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache type %q (expected memory or redis)", cfg.Cache.Type)
	}

	if cfg.Store.ArtifactRoot == "" {
		return fmt.Errorf("store.artifact_root must not be empty")
	}
	if cfg.Credentials.StorePath == "" {
		return fmt.Errorf("credentials.store_path must not be empty")
	}
	if cfg.Credentials.ServerPrincipal == "" {
		return fmt.Errorf("credentials.server_principal must not be empty")
	}

	if cfg.Security.RateLimiting.Enabled {
		if cfg.Security.RateLimiting.RequestsPerMin <= 0 {
			return fmt.Errorf("rate limiting requests_per_min must be positive")
		}
		if cfg.Security.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate limiting burst must be positive")
		}
	}

	return nil
}

// applyFeatureFlags overrides configuration based on build-time feature flags
func applyFeatureFlags(cfg *Config) {
	if !features.ShouldEnableMetrics() {
		cfg.Observability.Metrics.Enabled = false
	}
	if !features.ShouldEnableObservability() {
		cfg.Observability.Tracing.Enabled = false
	}
	if !features.ShouldEnableRateLimiting() {
		cfg.Security.RateLimiting.Enabled = false
	}
	if !features.ShouldEnableCaching() && cfg.Cache.Type == "redis" {
		cfg.Cache.Type = "memory"
	}
	if features.ShouldUseShortTimeouts() {
		cfg.Server.ReadTimeout = 5 * time.Second
		cfg.Server.WriteTimeout = 5 * time.Second
		cfg.Server.GracefulStop = 5 * time.Second
	}
}
