/*
main.go - Application entry point

PURPOSE:
  Command line for the spending tracker: runs the HTTP server and the
  offline workbook import/export and seeding tasks against the same store.

COMMANDS:
  serve            Start the HTTP API (default when no command is given)
  import <file>    Reconcile an .xlsx workbook into the ledger
  export [file]    Write every record to an .xlsx workbook
  seed             Insert default categories, or load a demo scenario

CONFIGURATION:
  --config points at a YAML file (default spending-tracker.yaml). A missing
  file means defaults. serve flags override the file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/ledger.db

  # Run against Postgres
  ./server serve --driver=postgres --db="postgres://localhost/ledger?sslmode=disable"

  # Load demo data, then download it
  ./server seed --scenario=household
  ./server export backup.xlsx

SEE ALSO:
  - commands.go: import, export and seed
  - config/config.go: Configuration file
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/spending-tracker/api"
	"github.com/warp/spending-tracker/config"
	"github.com/warp/spending-tracker/logger"
	"github.com/warp/spending-tracker/store/sqlite"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "spending-tracker.yaml"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every command.
type app struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "spending-tracker",
		Short: "Personal finance ledger with workbook import and export",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", DefaultConfigPath, "path to the YAML config file")

	serve := newServeCommand(a)
	rootCmd.RunE = serve.RunE
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newImportCommand(a))
	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newSeedCommand(a))

	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return nil
}

// openStore connects to the configured database.
func (a *app) openStore() (*sqlite.Store, error) {
	db := a.cfg.Database
	if db.Driver == sqlite.DriverSQLite {
		return sqlite.New(db.DSN)
	}
	return sqlite.Open(db.Driver, db.DSN)
}

func (a *app) handler(store *sqlite.Store) *api.Handler {
	return api.NewHandler(store, api.HandlerOptions{
		MaxUploadBytes:  a.cfg.Import.MaxBytes,
		DefaultCurrency: a.cfg.Currency,
	})
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCommand(a *app) *cobra.Command {
	var port int
	var dsn, driver string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			if dsn != "" {
				a.cfg.Database.DSN = dsn
			}
			if driver != "" {
				a.cfg.Database.Driver = driver
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return runServe(a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides server.port)")
	cmd.Flags().StringVar(&dsn, "db", "", `database path or URL; ":memory:" for a throwaway SQLite database`)
	cmd.Flags().StringVar(&driver, "driver", "", "database driver: sqlite3 or postgres")

	return cmd
}

func runServe(a *app) error {
	log := a.log

	store, err := a.openStore()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	router := api.NewRouter(a.handler(store), api.RouterOptions{
		Logger:         log,
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", a.cfg.Server.Port).
			Str("driver", a.cfg.Database.Driver).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
