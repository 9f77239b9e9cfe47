package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/radif/uploads/internal/config"
	"github.com/radif/uploads/internal/reconcile"
)

// SweepOptions defines the options for the `sweep` command.
type SweepOptions struct {
	iooption.IOStreams

	Delete      bool
	Concurrency int
	Prefix      string
	Output      string

	cfg    *config.Config
	logger *slog.Logger
}

var (
	sweepLong = templates.LongDesc(`
		Find stored objects that no catalog record references. Such orphans
		are left behind when the catalog write fails after the object was
		stored. Objects younger than the grace period are skipped so that
		uploads still in flight are not mistaken for orphans.

		By default orphans are only reported; pass --delete to remove them.`)

	sweepExample = templates.Examples(`
		# Report orphans older than an hour
		uploads sweep

		# Delete orphans older than a day, printing a JSON report
		uploads sweep --delete --grace-period 24h -o json`)
)

func NewSweepOptions(streams iooption.IOStreams) *SweepOptions {
	return &SweepOptions{IOStreams: streams}
}

func NewSweepCommand(o *SweepOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sweep",
		Short:   "Report or delete objects without a catalog record",
		Long:    sweepLong,
		Example: sweepExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&o.Delete, "delete", false, "Delete orphans instead of only reporting them")
	cmd.Flags().Duration("grace-period", 0, "Skip objects modified more recently than this (default $SWEEP_GRACE_PERIOD or 1h)")
	cmd.Flags().IntVarP(&o.Concurrency, "concurrency", "c", 8, "Parallel catalog lookups")
	cmd.Flags().StringVar(&o.Prefix, "prefix", "", "Only sweep keys with this prefix")
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "Report format: text or json")
	addBackendFlags(cmd)

	return cmd
}

func (o *SweepOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, o.IOStreams)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *SweepOptions) Validate() error {
	if o.Output != "text" && o.Output != "json" {
		return fmt.Errorf("unknown output format %q, want text or json", o.Output)
	}
	if o.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	if o.cfg.SweepGracePeriod < 0 {
		return fmt.Errorf("grace period must not be negative")
	}
	return nil
}

func (o *SweepOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStorage(ctx, o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	cat, closeCatalog, err := openCatalog(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer closeCatalog() //nolint:errcheck

	sweeper := reconcile.NewSweeper(store, cat, o.logger, reconcile.Options{
		GracePeriod: o.cfg.SweepGracePeriod,
		Delete:      o.Delete,
		Concurrency: o.Concurrency,
		Prefix:      o.Prefix,
	})

	report, err := sweeper.Run(ctx)
	if report != nil {
		if perr := o.print(report); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func (o *SweepOptions) print(report *reconcile.Report) error {
	if o.Output == "json" {
		enc := json.NewEncoder(o.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, key := range report.Orphans {
		fmt.Fprintln(o.Out, key)
	}
	if o.Delete {
		_, err := fmt.Fprintf(o.Out, "scanned %d, skipped %d (grace period), deleted %d of %d orphans\n",
			report.Scanned, report.Skipped, report.Deleted, len(report.Orphans))
		return err
	}
	_, err := fmt.Fprintf(o.Out, "scanned %d, skipped %d (grace period), %d orphans (dry run)\n",
		report.Scanned, report.Skipped, len(report.Orphans))
	return err
}
