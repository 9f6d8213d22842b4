// Package platform wires configuration, storage models and the session
// manager into a runnable service.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/txn2/websession/pkg/registry"
	"github.com/txn2/websession/pkg/session"
)

// CurrentConfigVersion is the config API version this build understands.
const CurrentConfigVersion = "v1"

const (
	defaultServerName      = "websession"
	defaultAddress         = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
)

// envVarPattern matches ${VAR} references in the raw config file.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config holds the complete service configuration.
type Config struct {
	APIVersion string                              `yaml:"apiVersion"`
	Server     ServerConfig                        `yaml:"server"`
	Database   DatabaseConfig                      `yaml:"database"`
	Session    session.Config                      `yaml:"session"`
	Models     map[string]registry.ModelKindConfig `yaml:"models"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection shared by postgres models.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// envOverrides are applied on top of the file.
type envOverrides struct {
	Address         string `env:"WEBSESSION_ADDRESS"`
	DatabaseDSN     string `env:"WEBSESSION_DATABASE_DSN"`
	SessionHandler  string `env:"WEBSESSION_SESSION_HANDLER"`
	SessionName     string `env:"WEBSESSION_SESSION_NAME"`
	SessionSavePath string `env:"WEBSESSION_SESSION_SAVEPATH"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying environment overrides and defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.APIVersion != "" && strings.TrimSpace(cfg.APIVersion) != CurrentConfigVersion {
		return nil, fmt.Errorf("unsupported config apiVersion %q; supported versions: %s",
			cfg.APIVersion, CurrentConfigVersion)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	if o.Address != "" {
		cfg.Server.Address = o.Address
	}
	if o.DatabaseDSN != "" {
		cfg.Database.DSN = o.DatabaseDSN
	}
	if o.SessionHandler != "" {
		cfg.Session.Handler = o.SessionHandler
	}
	if o.SessionName != "" {
		cfg.Session.Name = o.SessionName
	}
	if o.SessionSavePath != "" {
		cfg.Session.SavePath = o.SessionSavePath
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = defaultServerName
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Session.Handler == "" {
		errs = append(errs, "session.handler is required")
	}

	if c.Session.Handler == session.DriverModel {
		model := c.Session.DriverModel.Model
		switch {
		case model == "":
			errs = append(errs, "session.driver_model.model is required for the model handler")
		case !c.hasModel(model):
			errs = append(errs, fmt.Sprintf("session.driver_model.model %q is not an enabled model instance", model))
		}
	}

	if kind, ok := c.Models[registry.KindPostgres]; ok && kind.Enabled && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when postgres models are enabled")
	}

	if c.Session.GCInterval < 0 {
		errs = append(errs, "session.gc_interval must not be negative")
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// hasModel reports whether name is an instance of an enabled model kind.
func (c *Config) hasModel(name string) bool {
	for _, kind := range c.Models {
		if !kind.Enabled {
			continue
		}
		if _, ok := kind.Instances[name]; ok {
			return true
		}
	}
	return false
}
