package platform

import (
	"database/sql"
	"log/slog"

	"github.com/txn2/websession/pkg/registry"
	"github.com/txn2/websession/pkg/session"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Database connection (optional, opened from database.dsn if not provided).
	// A provided connection is not closed by the platform and is not migrated.
	DB *sql.DB

	// ModelRegistry (optional, will be created if not provided).
	ModelRegistry *registry.Registry

	// Drivers (optional, defaults to session.NewDrivers()).
	Drivers *session.Drivers

	// Logger (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithModelRegistry sets the model registry. Models already registered are
// available to the session handler alongside those loaded from config.
func WithModelRegistry(reg *registry.Registry) Option {
	return func(o *Options) {
		o.ModelRegistry = reg
	}
}

// WithDrivers sets the session driver registry.
func WithDrivers(drivers *session.Drivers) Option {
	return func(o *Options) {
		o.Drivers = drivers
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
