package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/booking-admin/internal/analyzer"
	"github.com/vitebski/booking-admin/internal/config"
	"github.com/vitebski/booking-admin/internal/connector"
	"github.com/vitebski/booking-admin/internal/form"
	"github.com/vitebski/booking-admin/internal/mutator"
	"github.com/vitebski/booking-admin/internal/store"
	"github.com/vitebski/booking-admin/internal/utils"
	"github.com/vitebski/booking-admin/internal/validator"
	"github.com/vitebski/booking-admin/pkg/models"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

// app holds everything one command needs; it lives for a single invocation
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	db        *connector.DatabaseConnector
	validator *validator.FieldValidator
	engine    *form.Engine
}

func newApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	logger := utils.SetupLogging(opts.logLevel)

	utils.LoadEnvironmentVariables(opts.envFile, logger)

	cfg, err := config.Load(opts.configFile, cmd.Root().PersistentFlags())
	if err != nil {
		return nil, err
	}
	if opts.logLevel == "" && cfg.LogLevel != "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}
	if cfg.ConfigFile != "" {
		logger.Infof("Loaded configuration from %s", cfg.ConfigFile)
	}

	if !utils.ValidateDatabaseURL(cfg.DatabaseURL, logger) {
		return nil, fmt.Errorf("a valid database URL is required (--database-url or DATABASE_URL)")
	}

	fieldValidator, err := validator.New(cfg.Rules())
	if err != nil {
		return nil, fmt.Errorf("invalid field rules: %w", err)
	}

	db, err := connector.NewDatabaseConnector(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}

	engine := form.NewEngine(
		cfg.Form(),
		analyzer.NewSchemaAnalyzer(db, logger),
		store.NewRecordStore(db, logger),
		mutator.NewSchemaMutator(db, cfg.IdentifierColumn, logger),
		fieldValidator,
		logger,
	)

	return &app{cfg: cfg, logger: logger, db: db, validator: fieldValidator, engine: engine}, nil
}

func (a *app) Close() {
	a.db.Disconnect()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "booking-admin",
		Short: "Administer the bookings table of a relational database",
		Long: `Booking Admin

Browse, create, edit and delete bookings, and evolve the bookings table's
columns, against Postgres, MySQL or SQLite. Every input is validated against
the table's live schema before it reaches the database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("database-url", "d", "", "Database URL (postgres://, mysql://, sqlite://); defaults to DATABASE_URL")
	pf.StringP("table", "t", "", "Table to administer (default: bookings)")
	pf.String("identifier-column", "", "Reference number column (default: reference_number)")
	pf.String("order-column", "", "Column rows are listed by (default: serial_number)")
	pf.Bool("order-desc", false, "List rows in descending order")
	pf.StringVarP(&opts.configFile, "config", "c", "", "Path to YAML config file (default: booking-admin.yaml if present)")
	pf.StringVarP(&opts.envFile, "env-file", "e", ".env", "Path to .env file")
	pf.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	// run opens the app around a command body and closes it on every exit path
	run := func(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(ctx, a, cmd, args)
		}
	}

	rootCmd.AddCommand(
		newTablesCmd(run),
		newColumnsCmd(run),
		newFormCmd(run),
		newListCmd(run),
		newShowCmd(run),
		newCreateCmd(run),
		newUpdateCmd(run),
		newDeleteCmd(run),
		newAddColumnCmd(run),
		newDropColumnCmd(run),
		newRenameColumnCmd(run),
		newChangeTypeCmd(run),
		newExportCmd(run),
		newSeedCmd(run),
	)

	return rootCmd
}

// reportError prints a command failure the way an operator needs to read it
func reportError(w io.Writer, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(w, "Input rejected:")
		for _, f := range verr.Fields {
			fmt.Fprintf(w, "  - %s: %s\n", f.Field, f.Message)
		}
		return
	}

	switch {
	case errors.Is(err, models.ErrConnection):
		fmt.Fprintf(w, "Database unavailable: %v\n", err)
	case errors.Is(err, models.ErrConfirmation):
		fmt.Fprintf(w, "Not confirmed: %v\n", err)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
