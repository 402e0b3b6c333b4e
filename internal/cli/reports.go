package cli

import (
	"cmp"
	"slices"

	"github.com/spf13/cobra"

	"actarchive/internal/access"
	"actarchive/internal/reconciliation/models"
	id "actarchive/pkg/domain"
)

type filterOptions struct {
	bureau       string
	registreType string
	year         string
}

func (o *filterOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.bureau, "bureau", "", "only this bureau")
	cmd.Flags().StringVar(&o.registreType, "registre-type", "", "only this registre type")
	cmd.Flags().StringVar(&o.year, "year", "", "only this year")
}

func (o *filterOptions) parse(batchArg string) (id.BatchID, id.KeyFilter, error) {
	batchID, err := id.ParseBatchID(batchArg)
	if err != nil {
		return id.BatchID{}, id.KeyFilter{}, err
	}
	filter, err := id.ParseKeyFilter(o.bureau, o.registreType, o.year)
	if err != nil {
		return id.BatchID{}, id.KeyFilter{}, err
	}
	return batchID, filter, nil
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "compare <batch-id>",
		Short: "List matched, missing and extra acts for a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, filter, err := opts.parse(args[0])
			if err != nil {
				return err
			}
			b, err := rootOpts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			result, err := b.Reconciliation.Compare(cmd.Context(), batchID, filter, access.Unrestricted())
			if err != nil {
				return err
			}
			out := newFormatter(rootOpts, cmd)
			if out.json() {
				return out.writeJSON(result)
			}
			return writeComparison(out, result)
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "tree <batch-id>",
		Short: "Show per-bureau match rates for a batch",
		Long: `Tree aggregates counts along bureau, registre type, year and
registre. Per-node figures are count based: matched is min(inventory, actual)
and can differ from compare, which matches exact keys.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, filter, err := opts.parse(args[0])
			if err != nil {
				return err
			}
			b, err := rootOpts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			tree, err := b.Reconciliation.Tree(cmd.Context(), batchID, filter, access.Unrestricted())
			if err != nil {
				return err
			}
			out := newFormatter(rootOpts, cmd)
			if out.json() {
				return out.writeJSON(tree)
			}
			return writeTree(out, tree)
		},
	}
	opts.bind(cmd)
	return cmd
}

func writeComparison(out *formatter, r *models.ComparisonResult) error {
	s := r.Summary
	if err := out.writef("batch %s: %d matched, %d missing, %d extra (%.2f%%)\n",
		r.BatchID, s.MatchedCount, s.MissingCount, s.ExtraCount, s.MatchRate); err != nil {
		return err
	}
	for _, k := range r.Missing {
		if err := out.writef("missing  %s\n", k); err != nil {
			return err
		}
	}
	for _, k := range r.Extra {
		if err := out.writef("extra    %s\n", k); err != nil {
			return err
		}
	}
	return nil
}

func writeTree(out *formatter, t *models.Tree) error {
	if err := out.writef("batch %s: %d/%d matched (%.2f%%, %s)\n",
		t.BatchID, t.Summary.Matched, t.Summary.InventoryCount, t.Summary.MatchRate, t.Approximation); err != nil {
		return err
	}
	return writeNodes(out, t.Bureaux, 1)
}

func writeNodes(out *formatter, nodes map[string]*models.Node, depth int) error {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.SortFunc(names, cmp.Compare[string])
	for _, name := range names {
		n := nodes[name]
		if err := out.writef("%*s%s: %d/%d (%.2f%%)\n", depth*2, "", name, n.Matched, n.InventoryCount, n.MatchRate); err != nil {
			return err
		}
		if err := writeNodes(out, n.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}
