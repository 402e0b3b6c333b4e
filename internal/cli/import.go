package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"actarchive/internal/inventory/importer"
	id "actarchive/pkg/domain"
)

type importOptions struct {
	sheet    string
	uploader string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import an inventory spreadsheet as a new batch",
		Long: `Import reads the first sheet (or --sheet) of an inventory workbook,
finds the header row and stores every non-blank row as one batch. The first
invalid row aborts the import and nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "sheet name (default: first sheet)")
	cmd.Flags().StringVar(&opts.uploader, "uploader", os.Getenv("ACTCTL_USER_ID"), "user ID recorded as the uploader (default $ACTCTL_USER_ID)")
	return cmd
}

func runImport(cmd *cobra.Command, rootOpts *RootOptions, opts *importOptions, path string) error {
	uploader, err := uuid.Parse(opts.uploader)
	if err != nil || uploader == uuid.Nil {
		return fmt.Errorf("--uploader must be a user UUID")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := importer.Read(f, importer.Options{SheetName: opts.sheet})
	if err != nil {
		return err
	}

	b, err := rootOpts.backend(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	batch, err := b.Inventory.ImportBatch(cmd.Context(), id.UserID(uploader), filepath.Base(path), rows)
	if err != nil {
		return err
	}

	out := newFormatter(rootOpts, cmd)
	if out.json() {
		return out.writeJSON(batch)
	}
	return out.writef("imported batch %s: %d records from %s\n", batch.ID, batch.RecordCount, batch.SourceFilename)
}
