// Package main provides the entry point for the websession server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gomigrate "github.com/golang-migrate/migrate/v4"

	"github.com/txn2/websession/internal/server"
	"github.com/txn2/websession/pkg/database/migrate"
	"github.com/txn2/websession/pkg/platform"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	showVersion bool
	migrate     string
	steps       int
}

// Migration actions accepted by -migrate.
const (
	migrateUp      = "up"
	migrateDown    = "down"
	migrateSteps   = "steps"
	migrateVersion = "version"
)

func parseFlags(fs *flag.FlagSet, args []string) (serverOptions, error) {
	opts := serverOptions{}
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.address, "address", "", "Server address (overrides server.address)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	fs.StringVar(&opts.migrate, "migrate", "", "Run a database migration action (up, down, steps, version) and exit")
	fs.IntVar(&opts.steps, "steps", 0, "Number of migrations for -migrate steps (negative rolls back)")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Printf("websession version %s\n", server.Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if opts.migrate != "" {
		return runMigrate(cfg, opts, os.Stdout)
	}

	p, err := platform.New(platform.WithConfig(cfg), platform.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, p, logger)
}

// loadConfig reads the configuration file, or falls back to an in-memory
// session store when no file is given.
func loadConfig(opts serverOptions) (*platform.Config, error) {
	var (
		cfg *platform.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = platform.LoadConfig(opts.configPath)
	} else {
		cfg, err = defaultConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultYAML keeps sessions in memory.
const defaultYAML = `
session:
  handler: model
  driver_model:
    model: sessions
models:
  memory:
    enabled: true
    instances:
      sessions: {}
`

func defaultConfig() (*platform.Config, error) {
	cfg, err := platform.ParseConfig([]byte(defaultYAML))
	if err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	return cfg, nil
}

// runMigrate opens the configured PostgreSQL database and applies a single
// migration action.
func runMigrate(cfg *platform.Config, opts serverOptions, out io.Writer) error {
	if err := checkMigrateAction(opts); err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("-migrate requires database.dsn")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return applyMigrateAction(db, opts, out)
}

func checkMigrateAction(opts serverOptions) error {
	switch opts.migrate {
	case migrateUp, migrateDown, migrateVersion:
		return nil
	case migrateSteps:
		if opts.steps == 0 {
			return errors.New("-migrate steps requires a non-zero -steps")
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", opts.migrate)
	}
}

func applyMigrateAction(db *sql.DB, opts serverOptions, out io.Writer) error {
	switch opts.migrate {
	case migrateUp:
		return migrate.Run(db)
	case migrateDown:
		return migrate.Down(db)
	case migrateSteps:
		return migrate.Steps(db, opts.steps)
	default:
		version, dirty, err := migrate.Version(db)
		if errors.Is(err, gomigrate.ErrNilVersion) {
			_, _ = fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading migration version: %w", err)
		}
		_, _ = fmt.Fprintf(out, "version %d (dirty: %t)\n", version, dirty)
		return nil
	}
}

func serve(ctx context.Context, p *platform.Platform, logger *slog.Logger) error {
	cfg := p.Config()
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.New(p.Sessions(), p.Health()),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", cfg.Server.Address, "version", server.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, fmt.Errorf("serving http: %w", serveErr))
	}
	if err := p.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping platform: %w", err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}
	return errors.Join(errs...)
}
