package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"multi-org-integration-platform/internal/models"
	"multi-org-integration-platform/internal/services"
)

// TransformOutput is the json output of the transform command.
type TransformOutput struct {
	Rule   string      `json:"rule"`
	Input  string      `json:"input"`
	Output interface{} `json:"output"`
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "transform <rule> <value>",
		Short:        "Apply a transformation rule to a value",
		Long:         fmt.Sprintf("Apply one of the transformation rules %v to a value.", models.TransformationRules),
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := models.TransformationRule(args[0])
			if !rule.IsValid() {
				return fmt.Errorf("unknown transformation rule %q", args[0])
			}

			result, err := services.NewTransformer().Apply(rule, args[1])
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), TransformOutput{Rule: string(rule), Input: args[1], Output: result})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}

	return cmd
}
