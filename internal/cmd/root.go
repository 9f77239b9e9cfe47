package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Accept file uploads, store them in object storage and record their
		metadata in a catalog. Without a subcommand the HTTP server is started.`)

	rootExamples = templates.Examples(`
		# Start the server with settings from the environment or .env
		uploads

		# Apply catalog migrations, then report orphaned objects
		uploads migrate up
		uploads sweep`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// UploadsOptions defines the options for the `uploads` command.
type UploadsOptions struct {
	iooption.IOStreams

	LogLevel string
}

// NewUploadsOptions provides an initialised UploadsOptions instance.
func NewUploadsOptions(streams iooption.IOStreams) *UploadsOptions {
	return &UploadsOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `uploads` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewUploadsOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `uploads` command and its nested
// children.
func NewRootCommandWithArgs(o *UploadsOptions) *cobra.Command {
	serveOptions := NewServeOptions(o.IOStreams)

	cmd := &cobra.Command{
		Use:                   "uploads [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "File upload ingest service",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, serveOptions)
		},
	}

	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewServeCommand(serveOptions))
	cmd.AddCommand(NewMigrateCommand(NewMigrateOptions(o.IOStreams)))
	cmd.AddCommand(NewSweepCommand(NewSweepOptions(o.IOStreams)))

	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
