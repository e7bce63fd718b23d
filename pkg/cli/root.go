package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/tenants"
	"github.com/platinummonkey/sunup/pkg/users"
)

// Env holds the services a command runs against
type Env struct {
	DB       *sql.DB
	Store    *storage.Store
	Audit    *audit.DBLogger
	Tenants  *tenants.Service
	Pipeline *pipeline.Service
	Users    *users.Service

	closeDB bool
}

// NewEnv wires the services over an open, migrated connection pool. The pool
// stays owned by the caller.
func NewEnv(db *sql.DB, driver string, defaultStages []models.StageTemplate) (*Env, error) {
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, err
	}
	store := storage.New(db, storage.Options{Driver: driver})
	auditLog := audit.NewMultiLogger(dbAudit)
	guard := auth.NewGuard(auth.GuardOptions{Audit: auditLog})

	return &Env{
		DB:       db,
		Store:    store,
		Audit:    dbAudit,
		Tenants:  tenants.NewService(store, auditLog),
		Pipeline: pipeline.NewService(store, guard, pipeline.Options{Audit: auditLog, DefaultStages: defaultStages}),
		Users:    users.NewService(store, guard, auditLog),
	}, nil
}

// Close releases the connection pool when the Env opened it
func (e *Env) Close() error {
	if e.closeDB {
		return e.DB.Close()
	}
	return nil
}

// Opener produces the Env for one command invocation
type Opener func(ctx context.Context, configPath string) (*Env, error)

// OpenFromConfig loads the configuration and opens its database
func OpenFromConfig(ctx context.Context, configPath string) (*Env, error) {
	if configPath == "" {
		configPath = os.Getenv("SUNUP_CONFIG_FILE")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	env, err := NewEnv(db, cfg.Database.Driver, cfg.Pipeline.DefaultStages)
	if err != nil {
		db.Close()
		return nil, err
	}
	env.closeDB = true
	return env, nil
}

// App carries the state shared by every command
type App struct {
	open Opener
	log  *logrus.Logger

	configPath string
	verbose    bool
}

// Option customizes an App
type Option func(*App)

// WithOpener replaces OpenFromConfig
func WithOpener(open Opener) Option {
	return func(a *App) { a.open = open }
}

// WithLogOutput sends progress messages to w
func WithLogOutput(w io.Writer) Option {
	return func(a *App) { a.log.SetOutput(w) }
}

// NewApp creates an App
func NewApp(opts ...Option) *App {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)

	a := &App{open: OpenFromConfig, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewRootCommand builds the sunup-admin command tree
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sunup-admin",
		Short:         "Operator tooling for the sunup CRM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.verbose {
				a.log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.newMigrateCommand(),
		a.newCreateTenantCommand(),
		a.newListTenantsCommand(),
		a.newInitStagesCommand(),
		a.newInviteUserCommand(),
		a.newProvisionUserCommand(),
		a.newSyncProfileCommand(),
		a.newAuditCommand(),
	)
	return root
}

// withEnv opens an Env for the duration of fn
func (a *App) withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *Env) error) error {
	ctx := observability.WithLogger(cmd.Context(), observability.NopLogger())
	env, err := a.open(ctx, a.configPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := env.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}()
	return fn(ctx, env)
}

// Execute runs the command tree against os.Args
func Execute(ctx context.Context) error {
	app := NewApp()
	err := app.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		app.log.Error(err)
	}
	return err
}
