package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port            string   `yaml:"port" env:"SERVER_PORT"`
		Mode            string   `yaml:"mode" env:"SERVER_MODE"`
		ShutdownTimeout string   `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
		AllowedOrigins  []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`
	} `yaml:"server"`

	Database struct {
		Driver          string `yaml:"driver" env:"DB_DRIVER"`
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
		LockTimeout     string `yaml:"lock_timeout" env:"DB_LOCK_TIMEOUT"`
		TxRetries       int    `yaml:"tx_retries" env:"DB_TX_RETRIES"`
		MigrationsDir   string `yaml:"migrations_dir" env:"DB_MIGRATIONS_DIR"`
		SeedDemoData    bool   `yaml:"seed_demo_data" env:"DB_SEED_DEMO_DATA"`
	} `yaml:"database"`

	JWT struct {
		Secret                string `yaml:"secret" env:"JWT_SECRET"`
		AccessTokenExpiration string `yaml:"access_token_expiration" env:"JWT_ACCESS_TOKEN_EXPIRATION"`
		Issuer                string `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Authz struct {
		ModelPath  string `yaml:"model_path" env:"AUTHZ_MODEL_PATH"`
		PolicyPath string `yaml:"policy_path" env:"AUTHZ_POLICY_PATH"`
	} `yaml:"authz"`

	ClassSetup ClassSetupConfig `yaml:"class_setup"`

	Hooks struct {
		ValidationWebhookURL string   `yaml:"validation_webhook_url" env:"HOOKS_VALIDATION_URL"`
		ChangeWebhookURL     string   `yaml:"change_webhook_url" env:"HOOKS_CHANGE_URL"`
		Timeout              string   `yaml:"timeout" env:"HOOKS_TIMEOUT"`
		Headers              []string `yaml:"headers" env:"HOOKS_HEADERS"`
	} `yaml:"hooks"`
}

// ClassSetupConfig holds the feature switches of the class setup screen.
type ClassSetupConfig struct {
	DisplayInstructorFlags      bool `yaml:"display_instructor_flags" env:"CLASS_SETUP_DISPLAY_INSTRUCTOR"`
	EnabledForStudentScheduling bool `yaml:"enabled_for_student_scheduling" env:"CLASS_SETUP_STUDENT_SCHEDULING"`
	EditExternalIDs             bool `yaml:"edit_external_ids" env:"CLASS_SETUP_EDIT_EXTERNAL_IDS"`
	EditSnapshotLimits          bool `yaml:"edit_snapshot_limits" env:"CLASS_SETUP_EDIT_SNAPSHOT_LIMITS"`
	DisplayLMS                  bool `yaml:"display_lms" env:"CLASS_SETUP_DISPLAY_LMS"`
	ChangeLogLimit              int  `yaml:"change_log_limit" env:"CLASS_SETUP_CHANGE_LOG_LIMIT"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.ShutdownTimeout = "10s"

	config.Database.Driver = "postgres"
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "classsetup"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = "1h"
	config.Database.LockTimeout = "5s"
	config.Database.TxRetries = 3
	config.Database.MigrationsDir = "migrations"

	config.JWT.AccessTokenExpiration = "1h"
	config.JWT.Issuer = "classsetup"

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	config.Authz.ModelPath = "configs/authz_model.conf"
	config.Authz.PolicyPath = "configs/authz_policy.csv"

	config.ClassSetup.DisplayInstructorFlags = true
	config.ClassSetup.EnabledForStudentScheduling = true
	config.ClassSetup.ChangeLogLimit = 20

	config.Hooks.Timeout = "5s"
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		if _, err := time.ParseDuration(config.Database.LockTimeout); err != nil {
			return fmt.Errorf("invalid lock timeout: %w", err)
		}
		if config.Database.TxRetries < 0 {
			return fmt.Errorf("database transaction retries must not be negative")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if _, err := time.ParseDuration(config.JWT.AccessTokenExpiration); err != nil {
		return fmt.Errorf("invalid JWT access token expiration format: %w", err)
	}
	if _, err := time.ParseDuration(config.Hooks.Timeout); err != nil {
		return fmt.Errorf("invalid hooks timeout: %w", err)
	}
	if _, err := time.ParseDuration(config.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	if config.ClassSetup.ChangeLogLimit < 0 {
		return fmt.Errorf("class setup change log limit must not be negative")
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}

// AccessTokenExpiration returns the parsed JWT lifetime.
func (c *Config) AccessTokenExpiration() time.Duration {
	d, _ := time.ParseDuration(c.JWT.AccessTokenExpiration)
	return d
}

// LockTimeout returns how long a transaction waits for the configuration row lock.
func (c *Config) LockTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Database.LockTimeout)
	return d
}

// HooksTimeout returns the parsed webhook timeout.
func (c *Config) HooksTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Hooks.Timeout)
	return d
}

// ShutdownTimeout returns the parsed graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}
