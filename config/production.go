// Package config provides configuration loading and validation for the application
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/magpie/utils"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MAGPIE_DATABASE_HOST
const EnvPrefix = "MAGPIE"

// ProductionConfig holds all configuration for the service
type ProductionConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Security  SecurityConfig  `mapstructure:"security" json:"security"`
	JWT       JWTConfig       `mapstructure:"jwt" json:"jwt"`
	Session   SessionConfig   `mapstructure:"session" json:"session"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
	Cache     CacheConfig     `mapstructure:"cache" json:"cache"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" json:"artifacts"`
	AI        AIConfig        `mapstructure:"ai" json:"ai"`
	Extractor ExtractorConfig `mapstructure:"extractor" json:"extractor"`
	Site      SiteConfig      `mapstructure:"site" json:"site"`
	Admin     AdminConfig     `mapstructure:"admin" json:"admin"`
	Captcha   CaptchaConfig   `mapstructure:"captcha" json:"captcha"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite
	Driver string `mapstructure:"driver" json:"driver"`
	// DriverName selects the database/sql driver behind gorm's postgres dialector (pgx or postgres)
	DriverName      string        `mapstructure:"driver_name" json:"driver_name"`
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	Name            string        `mapstructure:"name" json:"name"`
	User            string        `mapstructure:"user" json:"user"`
	Password        string        `mapstructure:"password" json:"-"`
	SSLMode         string        `mapstructure:"ssl_mode" json:"ssl_mode"`
	Path            string        `mapstructure:"path" json:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time"`
	SlowQueryLog    bool          `mapstructure:"slow_query_log" json:"slow_query_log"`
	SlowQueryTime   time.Duration `mapstructure:"slow_query_time" json:"slow_query_time"`
}

// DSN renders the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type ServerConfig struct {
	Host              string        `mapstructure:"host" json:"host"`
	Port              int           `mapstructure:"port" json:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
	BodyLimit         int           `mapstructure:"body_limit" json:"body_limit"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies" json:"trusted_proxies"`
	ProxyHeader       string        `mapstructure:"proxy_header" json:"proxy_header"`
	EnableCompression bool          `mapstructure:"enable_compression" json:"enable_compression"`
	EnableSwagger     bool          `mapstructure:"enable_swagger" json:"enable_swagger"`
	// PublicCacheTTL caches public list responses in memory; zero disables it
	PublicCacheTTL time.Duration `mapstructure:"public_cache_ttl" json:"public_cache_ttl"`
}

// Addr is host:port for Listen
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `mapstructure:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" json:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" json:"allow_credentials"`
	CORSMaxAge       int      `mapstructure:"cors_max_age" json:"cors_max_age"`

	// Rate limiting, requests per window
	AuthRateLimit   int           `mapstructure:"auth_rate_limit" json:"auth_rate_limit"`
	GlobalRateLimit int           `mapstructure:"global_rate_limit" json:"global_rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window" json:"rate_limit_window"`

	// Headers
	HSTSMaxAge     int    `mapstructure:"hsts_max_age" json:"hsts_max_age"`
	CSPPolicy      string `mapstructure:"csp_policy" json:"csp_policy"`
	XFrameOptions  string `mapstructure:"x_frame_options" json:"x_frame_options"`
	ReferrerPolicy string `mapstructure:"referrer_policy" json:"referrer_policy"`
}

type JWTConfig struct {
	SecretKey      string        `mapstructure:"secret_key" json:"-"`
	PrivateKey     string        `mapstructure:"private_key" json:"-"`
	PublicKey      string        `mapstructure:"public_key" json:"-"`
	UseRSAKeys     bool          `mapstructure:"use_rsa_keys" json:"use_rsa_keys"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" json:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer" json:"issuer"`
	Audience       string        `mapstructure:"audience" json:"audience"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl" json:"ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"`
	Output     string `mapstructure:"output" json:"output"`
	FilePath   string `mapstructure:"file_path" json:"file_path"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
	// AccessLog enables fiber's request logger
	AccessLog bool `mapstructure:"access_log" json:"access_log"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	RedisURL    string `mapstructure:"redis_url" json:"redis_url"`
	RedisDB     int    `mapstructure:"redis_db" json:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix" json:"redis_prefix"`
}

type ArtifactsConfig struct {
	// Backend is memory, redis or badger
	Backend string `mapstructure:"backend" json:"backend"`
	Dir     string `mapstructure:"dir" json:"dir"`
}

type AIConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Model       string        `mapstructure:"model" json:"model"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

type ExtractorConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxContentLength int           `mapstructure:"max_content_length" json:"max_content_length"`
	UseBrowser       bool          `mapstructure:"use_browser" json:"use_browser"`
	BrowserBin       string        `mapstructure:"browser_bin" json:"browser_bin"`
}

type SiteConfig struct {
	URL             string `mapstructure:"url" json:"url"`
	Title           string `mapstructure:"title" json:"title"`
	Description     string `mapstructure:"description" json:"description"`
	DefaultCategory string `mapstructure:"default_category" json:"default_category"`
	ReadingWPM      int    `mapstructure:"reading_wpm" json:"reading_wpm"`
	// Categories are seeded by migrate when the table is empty
	Categories []string `mapstructure:"categories" json:"categories"`
}

type AdminConfig struct {
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"-"`
}

type CaptchaConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" json:"ttl"`
	// Padding is the accepted angle error in degrees
	Padding   int `mapstructure:"padding" json:"padding"`
	ImageSize int `mapstructure:"image_size" json:"image_size"`
	// Store is memory or redis
	Store string `mapstructure:"store" json:"store"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.driver_name", "pgx")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "magpie")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "magpie.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 15*time.Minute)
	v.SetDefault("database.slow_query_log", true)
	v.SetDefault("database.slow_query_time", time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.body_limit", 4*1024*1024)
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1"})
	v.SetDefault("server.proxy_header", "X-Real-IP")
	v.SetDefault("server.enable_compression", true)
	v.SetDefault("server.enable_swagger", true)
	v.SetDefault("server.public_cache_ttl", 30*time.Second)

	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Requested-With"})
	v.SetDefault("security.allow_credentials", false)
	v.SetDefault("security.cors_max_age", utils.CORSMaxAge)
	v.SetDefault("security.auth_rate_limit", 20)
	v.SetDefault("security.global_rate_limit", 600)
	v.SetDefault("security.rate_limit_window", time.Minute)
	v.SetDefault("security.hsts_max_age", 31536000)
	v.SetDefault("security.csp_policy", "default-src 'self'")
	v.SetDefault("security.x_frame_options", "DENY")
	v.SetDefault("security.referrer_policy", "strict-origin-when-cross-origin")

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.private_key", "")
	v.SetDefault("jwt.public_key", "")
	v.SetDefault("jwt.use_rsa_keys", false)
	v.SetDefault("jwt.access_token_ttl", utils.AccessTokenTTL)
	v.SetDefault("jwt.issuer", "magpie")
	v.SetDefault("jwt.audience", "magpie-admin")

	v.SetDefault("session.ttl", utils.SessionTTL)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "logs/magpie.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.access_log", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "magpie:")

	v.SetDefault("artifacts.backend", "memory")
	v.SetDefault("artifacts.dir", "data/artifacts")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.timeout", 30*time.Second)

	v.SetDefault("extractor.timeout", utils.DefaultFetchTimeout)
	v.SetDefault("extractor.max_content_length", utils.MaxContentLength)
	v.SetDefault("extractor.use_browser", false)
	v.SetDefault("extractor.browser_bin", "")

	v.SetDefault("site.url", "http://localhost:8080")
	v.SetDefault("site.title", "Magpie")
	v.SetDefault("site.description", "Curated links")
	v.SetDefault("site.default_category", "Other")
	v.SetDefault("site.reading_wpm", utils.DefaultReadingWPM)
	v.SetDefault("site.categories", []string{"Technology", "Science", "Business", "Design", "News", "Tutorial", "Other"})

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.ttl", 2*time.Minute)
	v.SetDefault("captcha.padding", 10)
	v.SetDefault("captcha.image_size", 220)
	v.SetDefault("captcha.store", "memory")
}

// Load reads defaults, then the optional YAML file at path, then MAGPIE_* environment overrides.
// An empty path looks for magpie.yaml in the working directory and ignores its absence.
func Load(path string) (*ProductionConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("magpie")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg ProductionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// LoadProductionConfig loads and validates configuration
func LoadProductionConfig(path string) (*ProductionConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateProductionConfig reports every problem at once
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.Name == "" {
			errs = append(errs, "database.name is required")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if cfg.Database.DriverName != "pgx" && cfg.Database.DriverName != "postgres" {
			errs = append(errs, "database.driver_name must be pgx or postgres")
		}
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	default:
		errs = append(errs, "database.driver must be postgres or sqlite")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errs = append(errs, "jwt.private_key and jwt.public_key are required when jwt.use_rsa_keys is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "jwt.secret_key must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "jwt.access_token_ttl must be positive")
	}
	if cfg.Session.TTL <= 0 {
		errs = append(errs, "session.ttl must be positive")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	switch cfg.Logging.Output {
	case "stdout":
	case "file":
		if cfg.Logging.FilePath == "" {
			errs = append(errs, "logging.file_path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout or file")
	}

	needsRedis := cfg.Artifacts.Backend == "redis" || (cfg.Captcha.Enabled && cfg.Captcha.Store == "redis")
	if needsRedis && (!cfg.Cache.Enabled || cfg.Cache.RedisURL == "") {
		errs = append(errs, "cache.enabled and cache.redis_url are required for redis backed artifacts or captcha")
	}
	switch cfg.Artifacts.Backend {
	case "memory", "redis":
	case "badger":
		if cfg.Artifacts.Dir == "" {
			errs = append(errs, "artifacts.dir is required for the badger backend")
		}
	default:
		errs = append(errs, "artifacts.backend must be memory, redis or badger")
	}

	switch cfg.AI.Provider {
	case "", "openai", "openrouter", "anthropic":
	default:
		errs = append(errs, "ai.provider must be openai, openrouter or anthropic")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		errs = append(errs, "ai.temperature must be between 0 and 2")
	}

	if cfg.Extractor.Timeout <= 0 {
		errs = append(errs, "extractor.timeout must be positive")
	}

	if u, err := url.Parse(cfg.Site.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "site.url must be an absolute URL")
	}
	if cfg.Site.ReadingWPM < 50 || cfg.Site.ReadingWPM > 2000 {
		errs = append(errs, "site.reading_wpm must be between 50 and 2000")
	}

	if cfg.Captcha.Enabled && cfg.Captcha.Store != "memory" && cfg.Captcha.Store != "redis" {
		errs = append(errs, "captcha.store must be memory or redis")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
