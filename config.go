package sigmaql

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaSourceType selects where the schema document is loaded from.
type SchemaSourceType string

const (
	SchemaSourceFile     SchemaSourceType = "file"
	SchemaSourcePostgres SchemaSourceType = "postgres"
	SchemaSourceS3       SchemaSourceType = "s3"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Schema     SchemaConfig     `json:"schema" yaml:"schema"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port            string        `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

// SchemaConfig describes the schema source read once at startup.
type SchemaConfig struct {
	Source      SchemaSourceType `json:"source" yaml:"source"`
	Path        string           `json:"path" yaml:"path"`
	LoadTimeout time.Duration    `json:"loadTimeout" yaml:"loadTimeout"`
	Postgres    PostgresConfig   `json:"postgres" yaml:"postgres"`
	S3          S3Config         `json:"s3" yaml:"s3"`
}

// PostgresConfig contains database connection settings for the schema table
type PostgresConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	Database       string        `json:"database" yaml:"database"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	SSLMode        string        `json:"sslMode" yaml:"sslMode"`
	Table          string        `json:"table" yaml:"table"`
	MaxConnections int           `json:"maxConnections" yaml:"maxConnections"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	// UseIAM replaces the password with an AWS DSQL auth token.
	UseIAM bool   `json:"useIAM" yaml:"useIAM"`
	Region string `json:"region" yaml:"region"`
}

// S3Config locates the schema document in object storage.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Key      string `json:"key" yaml:"key"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// ValidationConfig contains query validation settings
type ValidationConfig struct {
	// MaxIncludeDepth bounds include nesting; 0 disables the bound.
	MaxIncludeDepth int `json:"maxIncludeDepth" yaml:"maxIncludeDepth"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Path      string `json:"path" yaml:"path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20, // 1MB
		},
		Schema: SchemaConfig{
			Source:      SchemaSourceFile,
			Path:        "schema.json",
			LoadTimeout: 30 * time.Second,
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				SSLMode:        "disable",
				Table:          "sigmaql_schema",
				MaxConnections: 2,
				Timeout:        10 * time.Second,
			},
		},
		Validation: ValidationConfig{
			MaxIncludeDepth: 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "sigmaql",
			Path:      "/metrics",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return &ConfigError{Field: "server.port", Message: "must not be empty"}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return &ConfigError{Field: "server.maxBodyBytes", Message: "must be greater than 0"}
	}

	switch c.Schema.Source {
	case SchemaSourceFile:
		if c.Schema.Path == "" {
			return &ConfigError{Field: "schema.path", Message: "is required for the file source"}
		}
	case SchemaSourcePostgres:
		if c.Schema.Postgres.Table == "" {
			return &ConfigError{Field: "schema.postgres.table", Message: "is required for the postgres source"}
		}
		if c.Schema.Postgres.MaxConnections <= 0 {
			return &ConfigError{Field: "schema.postgres.maxConnections", Message: "must be greater than 0"}
		}
	case SchemaSourceS3:
		if c.Schema.S3.Bucket == "" || c.Schema.S3.Key == "" {
			return &ConfigError{Field: "schema.s3", Message: "bucket and key are required for the s3 source"}
		}
	default:
		return &ConfigError{Field: "schema.source", Message: fmt.Sprintf("unsupported source %q", c.Schema.Source)}
	}

	if c.Schema.LoadTimeout <= 0 {
		return &ConfigError{Field: "schema.loadTimeout", Message: "must be greater than 0"}
	}

	if c.Validation.MaxIncludeDepth < 0 {
		return &ConfigError{Field: "validation.maxIncludeDepth", Message: "must be greater than or equal to 0"}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be 'json' or 'console'"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfig reads a YAML configuration file on top of the defaults, applies
// SIGMAQL_* environment overrides and validates the result. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies SIGMAQL_SECTION_FIELD environment variables.
// Environment variables always take precedence over file values.
func ApplyEnvOverrides(cfg *Config) {
	// Server
	if val := os.Getenv("SIGMAQL_SERVER_PORT"); val != "" {
		cfg.Server.Port = val
	}
	if val := os.Getenv("SIGMAQL_SERVER_MAX_BODY_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	// Schema
	if val := os.Getenv("SIGMAQL_SCHEMA_SOURCE"); val != "" {
		cfg.Schema.Source = SchemaSourceType(val)
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_PATH"); val != "" {
		cfg.Schema.Path = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_LOAD_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Schema.LoadTimeout = d
		}
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_HOST"); val != "" {
		cfg.Schema.Postgres.Host = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Schema.Postgres.Port = n
		}
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_DATABASE"); val != "" {
		cfg.Schema.Postgres.Database = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_USERNAME"); val != "" {
		cfg.Schema.Postgres.Username = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_PASSWORD"); val != "" {
		cfg.Schema.Postgres.Password = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_TABLE"); val != "" {
		cfg.Schema.Postgres.Table = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_POSTGRES_USE_IAM"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Schema.Postgres.UseIAM = b
		}
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_S3_BUCKET"); val != "" {
		cfg.Schema.S3.Bucket = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_S3_KEY"); val != "" {
		cfg.Schema.S3.Key = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_S3_REGION"); val != "" {
		cfg.Schema.S3.Region = val
	}
	if val := os.Getenv("SIGMAQL_SCHEMA_S3_ENDPOINT"); val != "" {
		cfg.Schema.S3.Endpoint = val
	}

	// Validation
	if val := os.Getenv("SIGMAQL_VALIDATION_MAX_INCLUDE_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Validation.MaxIncludeDepth = n
		}
	}

	// Logging
	if val := os.Getenv("SIGMAQL_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("SIGMAQL_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	// Metrics
	if val := os.Getenv("SIGMAQL_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}
