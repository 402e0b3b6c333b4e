package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type formatter struct {
	format string
	w      io.Writer
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *formatter {
	return &formatter{format: opts.Format, w: cmd.OutOrStdout()}
}

func (f *formatter) json() bool { return f.format == "json" }

func (f *formatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *formatter) writef(format string, args ...any) error {
	_, err := fmt.Fprintf(f.w, format, args...)
	return err
}
