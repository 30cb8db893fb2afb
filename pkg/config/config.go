// Package config loads opmeta.yaml and the environment into a Config
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// EnvPrefix prefixes environment overrides of config keys, for example
// OPMETA_SERVER_PORT for server.port.
const EnvPrefix = "OPMETA"

// Config represents the opmeta configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Validation  ValidationConfig `mapstructure:"validation"`
	Server      ServerConfig     `mapstructure:"server"`
	Contract    ContractConfig   `mapstructure:"contract"`
	Generate    GenerateConfig   `mapstructure:"generate"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Auth        AuthConfig       `mapstructure:"auth"`
	Audit       AuditConfig      `mapstructure:"audit"`
	Log         LogConfig        `mapstructure:"log"`

	// Fallbacks are defaults for env fallback keys not set in the environment.
	Fallbacks map[string]string `mapstructure:"fallbacks"`
}

// ValidationConfig selects the validation gate mode
type ValidationConfig struct {
	// Mode is strict or warn. Empty picks by environment.
	Mode string `mapstructure:"mode"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	APIPrefix string `mapstructure:"api_prefix"`
}

// ContractConfig locates the OpenAPI document carrying the metadata
type ContractConfig struct {
	Document string `mapstructure:"document"`
}

// GenerateConfig represents code generation settings
type GenerateConfig struct {
	Output  string `mapstructure:"output"`
	Package string `mapstructure:"package"`
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents the redis connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig represents session and authorization settings
type AuthConfig struct {
	JWTSecret   string              `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration       `mapstructure:"token_ttl"`
	TenantField string              `mapstructure:"tenant_field"`
	Roles       map[string][]string `mapstructure:"roles"`
}

// AuditConfig selects where audit records are written
type AuditConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads opmeta.yaml from dir (the working directory when empty) and
// applies OPMETA_* environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("opmeta")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("validation.mode", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("contract.document", "openapi.json")
	v.SetDefault("generate.output", "internal/api")
	v.SetDefault("generate.package", "api")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "opmeta:")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.tenant_field", "tenantId")
	v.SetDefault("audit.driver", "log")
	v.SetDefault("log.level", "")
}

// IsProduction reports whether the configuration targets production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GateMode returns the configured validation mode, defaulting to strict in
// production and warn elsewhere.
func (c *Config) GateMode() opmeta.Mode {
	if c.Validation.Mode != "" {
		return opmeta.Mode(c.Validation.Mode)
	}
	if c.IsProduction() {
		return opmeta.ModeStrict
	}
	return opmeta.ModeWarn
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Environment {
	case "production", "development", "test":
	default:
		return fmt.Errorf("environment must be production, development or test, got: %s", cfg.Environment)
	}

	if cfg.Validation.Mode != "" {
		if _, err := opmeta.ParseMode(cfg.Validation.Mode); err != nil {
			return fmt.Errorf("validation.mode: %w", err)
		}
	}

	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	switch cfg.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got: %s", cfg.Cache.Backend)
	}

	switch cfg.Audit.Driver {
	case "log":
	case "postgres", "sqlite":
		if cfg.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the %s driver", cfg.Audit.Driver)
		}
	default:
		return fmt.Errorf("audit.driver must be log, postgres or sqlite, got: %s", cfg.Audit.Driver)
	}

	if cfg.IsProduction() && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}

	return nil
}
