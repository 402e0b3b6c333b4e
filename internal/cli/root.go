// Package cli is the operator command line: inventory imports and
// reconciliation reports run directly against the archive database.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	inventoryservice "actarchive/internal/inventory/service"
	reconservice "actarchive/internal/reconciliation/service"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	Format      string
	Verbose     bool

	// open builds the services a command runs against. Tests swap it for an
	// in-memory backend.
	open func(ctx context.Context, opts *RootOptions) (*Backend, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "text"}

// Backend is what commands operate on.
type Backend struct {
	Inventory      *inventoryservice.Service
	Reconciliation *reconservice.Service
	Close          func() error
}

// NewRootCommand creates the actctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: openPostgres})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actctl",
		Short: "Operate the civil-registry act archive",
		Long: `actctl imports inventory spreadsheets and runs reconciliation
reports against the archive database. It acts with operator rights: reports
cover every bureau.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string (default $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewTreeCommand(opts))

	return cmd
}

// logger writes to stderr so JSON on stdout stays clean.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) backend(cmd *cobra.Command) (*Backend, error) {
	return o.open(cmd.Context(), o)
}
