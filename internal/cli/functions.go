package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlsleep/internal/sqlext"
)

// FunctionsResult is the JSON payload of the functions command.
type FunctionsResult struct {
	Extension string                `json:"extension"`
	Version   string                `json:"version"`
	Functions []sqlext.FunctionInfo `json:"functions"`
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "functions",
		Short:         "List the registered SQL functions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if f.Format == "json" {
				return f.Success(FunctionsResult{
					Extension: sqlext.Name,
					Version:   sqlext.Version,
					Functions: sqlext.Functions(),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n\n", sqlext.Name, sqlext.Version)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tARGUMENT\tRETURNS\tVOLATILE\tDESCRIPTION")
			for _, fn := range sqlext.Functions() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", fn.Name, fn.ArgType, fn.ReturnType, fn.Volatile, fn.Description)
			}
			return tw.Flush()
		},
	}
}
