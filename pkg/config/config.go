package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatabaseDriver is the default warehouse database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database location.
	DefaultSQLitePath = "./pipelinoor.db"

	// DefaultBatchSize is the default insert batch size for raw loads and
	// cleansed rewrites.
	DefaultBatchSize = 500

	// DefaultSourceSchema is the schema label recorded in the run log when
	// a source does not declare one.
	DefaultSourceSchema = "source"
)

// Config is the root configuration for pipelinoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global"`
	Database DatabaseConfig `yaml:"database"`
	Sources  []SourceConfig `yaml:"sources"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig contains warehouse database settings.
type DatabaseConfig struct {
	Driver   string                 `yaml:"driver"`
	SQLite   SQLiteDatabaseConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresDatabaseConfig `yaml:"postgres,omitempty"`
}

// SQLiteDatabaseConfig contains SQLite settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostgresDatabaseConfig contains PostgreSQL settings.
type PostgresDatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SourceConfig maps a logical entity to its raw source file. The order of
// entries defines the load order.
type SourceConfig struct {
	Entity   string `yaml:"entity"`
	Location string `yaml:"location"`
	Schema   string `yaml:"schema,omitempty"`
}

// PipelineConfig contains pipeline execution settings.
type PipelineConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// Load reads and parses a configuration file from the given path.
// Environment variables override file values for database settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}

	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}

	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = DefaultBatchSize
	}

	for i := range c.Sources {
		if c.Sources[i].Schema == "" {
			c.Sources[i].Schema = DefaultSourceSchema
		}
	}
}

// applyEnvOverrides applies PIPELINOOR_* environment variable overrides.
// Credentials in particular should come from the environment rather than
// the config file.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PIPELINOOR_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv("PIPELINOOR_SQLITE_PATH"); v != "" {
		c.Database.SQLite.Path = v
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_HOST"); v != "" {
		c.Database.Postgres.Host = v
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PIPELINOOR_POSTGRES_PORT %q: %w", v, err)
		}

		c.Database.Postgres.Port = port
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_USER"); v != "" {
		c.Database.Postgres.User = v
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_PASSWORD"); v != "" {
		c.Database.Postgres.Password = v
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_DATABASE"); v != "" {
		c.Database.Postgres.Database = v
	}

	if v := os.Getenv("PIPELINOOR_POSTGRES_SSLMODE"); v != "" {
		c.Database.Postgres.SSLMode = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite driver requires database.sqlite.path")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres driver requires database.postgres.host")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres driver requires database.postgres.database")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	seen := make(map[string]struct{}, len(c.Sources))

	for i, src := range c.Sources {
		if src.Entity == "" {
			return fmt.Errorf("source %d: entity is required", i)
		}

		if _, exists := seen[src.Entity]; exists {
			return fmt.Errorf("source %d: duplicate entity %q", i, src.Entity)
		}

		seen[src.Entity] = struct{}{}

		if src.Location == "" {
			return fmt.Errorf("source %q: location is required", src.Entity)
		}
	}

	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be positive")
	}

	return nil
}
