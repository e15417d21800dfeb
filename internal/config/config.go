package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"weather-etl/pkg/database"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
	Transform TransformConfig `yaml:"transform"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds the relational store settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"hostname"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"dbname"`
	User            string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// APIConfig holds pagination defaults for the read endpoints
type APIConfig struct {
	DefaultPageSize   int `yaml:"default_page_size"`
	DefaultPageNumber int `yaml:"default_page_number"`
	MaxPageSize       int `yaml:"max_page_size"`
}

// TransformConfig controls the periodic transform refresh in the server
type TransformConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	SourceTable     string        `yaml:"source_table"`
}

// Default returns the configuration used when no file or env overrides exist
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         5000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          database.DriverPostgres,
			Host:            "localhost",
			Port:            5432,
			Database:        "weather",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		API: APIConfig{
			DefaultPageSize:   10,
			DefaultPageNumber: 1,
			MaxPageSize:       1000,
		},
		Transform: TransformConfig{
			SourceTable: "weather_data",
		},
	}
}

// LoadConfig reads the YAML file named by WEATHER_CONFIG (default config.yaml)
// and applies environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("INFO: error loading .env file: %v", err)
	}

	path := getenvDefault("WEATHER_CONFIG", "config.yaml")
	return Load(path)
}

// Load reads configuration from path, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = getenvDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getenvInt("SERVER_PORT", c.Server.Port)

	c.Database.Driver = getenvDefault("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getenvDefault("DB_HOSTNAME", c.Database.Host)
	c.Database.Port = getenvInt("DB_PORT", c.Database.Port)
	c.Database.Database = getenvDefault("DB_NAME", c.Database.Database)
	c.Database.User = getenvDefault("DB_USERNAME", c.Database.User)
	c.Database.Password = getenvDefault("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getenvDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Path = getenvDefault("DB_PATH", c.Database.Path)

	c.Logging.Level = getenvDefault("LOG_LEVEL", c.Logging.Level)

	if v := os.Getenv("TRANSFORM_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TRANSFORM_REFRESH_INTERVAL: %w", err)
		}
		c.Transform.RefreshInterval = d
	}

	return nil
}

// Validate checks that the configuration can be used to start a process
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database hostname is required")
		}
		if c.Database.User == "" {
			return errors.New("database username is required")
		}
		if c.Database.Database == "" {
			return errors.New("database name is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.API.DefaultPageSize <= 0 || c.API.DefaultPageNumber <= 0 {
		return errors.New("api default page size and number must be positive")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api max_page_size %d is below default_page_size %d", c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if c.Transform.RefreshInterval < 0 {
		return errors.New("transform refresh_interval must not be negative")
	}

	return nil
}

// DBConfig converts the file settings into a pool configuration
func (c *Config) DBConfig() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
