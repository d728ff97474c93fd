package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/services"
)

type suggestOptions struct {
	threshold   float64
	maxMappings int
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &suggestOptions{}

	cmd := &cobra.Command{
		Use:   "suggest <source-schema> <target-schema>",
		Short: "Suggest field mappings between two schemas",
		Long: `Suggest field mappings between two schemas using the built-in alias catalog.

Mappings are printed by descending confidence. Unknown schemas produce no
suggestions; an unreadable catalog produces the fallback Id and Name mappings.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.Config{Sync: config.SyncConfig{
				MappingConfidenceThreshold: opts.threshold,
				MaxSuggestedMappings:       opts.maxMappings,
			}}
			generator := services.NewMappingGenerator(quietLogger(cmd.ErrOrStderr()), cfg, services.NewSimilarityScorer())
			mappings := generator.Generate(args[0], args[1])

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), mappings)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tTARGET\tRULE\tCONFIDENCE")
			for _, m := range mappings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", m.SourceField, m.TargetField, m.TransformationRule, m.Confidence)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum confidence (default 0.7)")
	cmd.Flags().IntVar(&opts.maxMappings, "max", 0, "maximum number of mappings (default 20)")

	return cmd
}
