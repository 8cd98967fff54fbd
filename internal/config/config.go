// Package config provides configuration loading for the tasked CLI and
// gateway.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tasked-labs/tasked/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. TASKED_SERVER_LISTEN.
const EnvPrefix = "TASKED"

// Config holds the application configuration.
type Config struct {
	// Endpoint is the gateway URL used by the CLI.
	Endpoint string `mapstructure:"endpoint"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Database configuration (for gateway)
	Database DatabaseConfig `mapstructure:"database"`

	// Bootstrap configuration (for gateway)
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing"`

	// Server configuration (for gateway)
	Server ServerConfig `mapstructure:"server"`

	// SigningKey is the HMAC token key. It is only ever read from the
	// environment, see Secrets.
	SigningKey string `mapstructure:"-"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Token is the CLI's bearer token override.
	Token string `mapstructure:"token"`

	// TokenTTL is how long issued tokens stay valid.
	TokenTTL time.Duration `mapstructure:"tokenTTL"`

	// Issuer is the token issuer claim.
	Issuer string `mapstructure:"issuer"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path"`

	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`

	// URL overrides the discrete PostgreSQL fields. Environment only.
	URL string `mapstructure:"-"`
}

// BootstrapConfig holds boss designation configuration.
type BootstrapConfig struct {
	// Mode is "first-registration" or "explicit".
	Mode string `mapstructure:"mode"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// Persist writes decisions to the database so the audit summary
	// survives restarts.
	Persist bool `mapstructure:"persist"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP endpoint. Tracing is off when empty.
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"serviceName"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "http://localhost:8080",
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "tasked",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "tasked",
			Password:        "tasked_dev",
			Name:            "tasked",
			SSLMode:         "disable",
			Path:            "tasked.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Bootstrap: BootstrapConfig{
			Mode: "first-registration",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "tasked-gateway",
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load loads configuration from file and environment.
// With an empty configPath it looks for tasked.yaml in the working directory
// and config.yaml in ~/.tasked; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("tasked")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		if configPath == "" {
			if err := readHomeConfig(v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// readHomeConfig falls back to ~/.tasked/config.yaml.
func readHomeConfig(v *viper.Viper) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".tasked", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.tokenTTL", d.Auth.TokenTTL)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.maxOpenConns", d.Database.MaxOpenConns)
	v.SetDefault("database.maxIdleConns", d.Database.MaxIdleConns)
	v.SetDefault("database.connMaxLifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("bootstrap.mode", d.Bootstrap.Mode)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.persist", d.Logging.Persist)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.serviceName", d.Tracing.ServiceName)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)
}

// Validate checks the gateway-side configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case storage.Postgres.Name:
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres")
		}
	case storage.SQLite.Name:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q",
			storage.Postgres.Name, storage.SQLite.Name, c.Database.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.tokenTTL must be positive")
	}
	switch c.Bootstrap.Mode {
	case "first-registration", "explicit":
	default:
		return fmt.Errorf("bootstrap.mode must be \"first-registration\" or \"explicit\", got %q", c.Bootstrap.Mode)
	}
	switch c.Logging.Format {
	case "json", "none":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"none\", got %q", c.Logging.Format)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.Database.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// PostgresConfig returns the storage pool configuration.
func (c *Config) PostgresConfig() storage.PostgresConfig {
	return storage.PostgresConfig{
		ConnectionString: c.PostgresDSN(),
		MaxOpenConns:     c.Database.MaxOpenConns,
		MaxIdleConns:     c.Database.MaxIdleConns,
		ConnMaxLifetime:  c.Database.ConnMaxLifetime,
	}
}
