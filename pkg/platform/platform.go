package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/txn2/websession/pkg/database/migrate"
	"github.com/txn2/websession/pkg/health"
	"github.com/txn2/websession/pkg/registry"
	"github.com/txn2/websession/pkg/session"
)

// dbPingTimeout bounds the initial database connectivity check.
const dbPingTimeout = 5 * time.Second

// pinger is implemented by models that can report their own health.
type pinger interface {
	Ping(ctx context.Context) error
}

// counter is implemented by models that can count their stored sessions.
// A successful count doubles as a readiness check for the backing table.
type counter interface {
	Count(ctx context.Context) (int, error)
}

// dirModel is implemented by models that keep sessions in a directory.
type dirModel interface {
	Dir() string
}

// Platform is the main platform facade.
type Platform struct {
	config *Config
	logger *slog.Logger

	lifecycle *Lifecycle
	health    *health.Checker

	db     *sql.DB
	ownsDB bool

	models   *registry.Registry
	drivers  *session.Drivers
	sessions *session.Manager
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initDatabase(opts); err != nil {
		return err
	}
	if err := p.initModels(opts); err != nil {
		return err
	}
	if err := p.initSessions(opts); err != nil {
		return err
	}
	p.initProbes()
	return nil
}

func (p *Platform) initDatabase(opts *Options) error {
	if opts.DB != nil {
		p.db = opts.DB
		return nil
	}
	if p.config.Database.DSN == "" {
		return nil
	}

	db, err := sql.Open("postgres", p.config.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
	p.db = db
	p.ownsDB = true

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrate.Run(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (p *Platform) initModels(opts *Options) error {
	p.models = opts.ModelRegistry
	if p.models == nil {
		p.models = registry.NewRegistry()
	}
	registry.RegisterBuiltinFactories(p.models, registry.Deps{DB: p.db})

	if err := registry.NewLoader(p.models).Load(p.config.Models); err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	for _, name := range p.models.Names() {
		attrs := []any{"model", name, "kind", p.models.Kind(name)}
		if model, ok := p.models.Get(name); ok {
			if dm, ok := model.(dirModel); ok && dm.Dir() != "" {
				attrs = append(attrs, "dir", dm.Dir())
			}
		}
		p.logger.Info("session model loaded", attrs...)
	}
	return nil
}

func (p *Platform) initSessions(opts *Options) error {
	p.drivers = opts.Drivers
	if p.drivers == nil {
		p.drivers = session.NewDrivers()
	}

	manager, err := session.New(p.config.Session, p.drivers, p.models, session.WithLogger(p.logger))
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	p.sessions = manager

	if interval := p.config.Session.GCInterval; interval > 0 {
		p.lifecycle.Append("session-gc",
			func(_ context.Context) error {
				manager.StartGCRoutine(interval)
				return nil
			},
			func(_ context.Context) error {
				return manager.Close()
			},
		)
	}
	return nil
}

func (p *Platform) initProbes() {
	if p.db != nil {
		p.health.AddProbe("database", p.db.PingContext)
	}
	for _, name := range p.models.Names() {
		model, _ := p.models.Get(name)
		switch m := model.(type) {
		case pinger:
			p.health.AddProbe("model:"+name, m.Ping)
		case counter:
			p.health.AddProbe("model:"+name, func(ctx context.Context) error {
				_, err := m.Count(ctx)
				return err
			})
		}
	}
}

// Start starts the platform and marks it ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	return nil
}

// Stop marks the platform as draining and stops background work.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Sessions returns the session manager.
func (p *Platform) Sessions() *session.Manager {
	return p.sessions
}

// Models returns the model registry.
func (p *Platform) Models() *registry.Registry {
	return p.models
}

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// Lifecycle returns the lifecycle manager.
func (p *Platform) Lifecycle() *Lifecycle {
	return p.lifecycle
}

// closeResource closes a resource and appends any error.
func closeResource(errs *[]error, closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}

// Close closes all platform resources.
func (p *Platform) Close() error {
	var errs []error

	if p.sessions != nil {
		closeResource(&errs, p.sessions)
	}
	if p.models != nil {
		closeResource(&errs, p.models)
	}
	if p.ownsDB && p.db != nil {
		closeResource(&errs, p.db)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing platform: %w", errors.Join(errs...))
	}
	return nil
}
