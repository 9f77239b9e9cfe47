package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/radif/uploads/internal/catalog"
	"github.com/radif/uploads/internal/config"
	"github.com/radif/uploads/internal/db"
)

// MigrateOptions defines the options for the `migrate` command.
type MigrateOptions struct {
	iooption.IOStreams

	Direction string
	Steps     int

	cfg    *config.Config
	logger *slog.Logger
}

var (
	migrateLong = templates.LongDesc(`
		Manage the catalog schema. Postgres migrations are embedded in the
		binary; the SQLite catalog creates its schema when opened.`)

	migrateExample = templates.Examples(`
		# Apply all pending migrations
		uploads migrate up

		# Roll back the most recent migration
		uploads migrate down 1

		# Print the current schema version
		uploads migrate version`)
)

func NewMigrateOptions(streams iooption.IOStreams) *MigrateOptions {
	return &MigrateOptions{IOStreams: streams}
}

func NewMigrateCommand(o *MigrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down N|version]",
		Short:     "Apply or roll back catalog migrations",
		Long:      migrateLong,
		Example:   migrateExample,
		ValidArgs: []string{"up", "down", "version"},
		Args:      cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}

	cmd.Flags().String("catalog-backend", "", "Metadata catalog: postgres or sqlite")
	cmd.Flags().String("database-url", "", "Postgres connection string")
	cmd.Flags().String("sqlite-path", "", "SQLite database file")

	return cmd
}

func (o *MigrateOptions) Complete(cmd *cobra.Command, args []string) error {
	o.Direction = "up"
	if len(args) > 0 {
		o.Direction = args[0]
	}
	if len(args) > 1 {
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], err)
		}
		o.Steps = steps
	}

	cfg, logger, err := loadConfig(cmd, o.IOStreams)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *MigrateOptions) Validate() error {
	switch o.Direction {
	case "up", "version":
		if o.Steps != 0 {
			return fmt.Errorf("%s does not take a step count", o.Direction)
		}
	case "down":
		if o.Steps <= 0 {
			return fmt.Errorf("down requires a positive step count")
		}
	default:
		return fmt.Errorf("unknown migrate direction %q, want up, down or version", o.Direction)
	}
	return nil
}

func (o *MigrateOptions) Run() error {
	if o.cfg.CatalogBackend == config.CatalogSQLite {
		cat, err := catalog.OpenSQLite(o.cfg.SQLitePath)
		if err != nil {
			return err
		}
		o.logger.Info("sqlite catalog schema is up to date", "path", o.cfg.SQLitePath)
		return cat.Close()
	}

	switch o.Direction {
	case "down":
		return db.Rollback(o.cfg.DatabaseURL, o.Steps)
	case "version":
		v, dirty, err := db.Version(o.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.Out, "version %d (dirty: %t)\n", v, dirty)
		return nil
	default:
		return db.Migrate(o.cfg.DatabaseURL)
	}
}
