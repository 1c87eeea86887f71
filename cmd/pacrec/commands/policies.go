package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPoliciesCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the loaded admission policies",
		Long: `List the policies the admission gate evaluates against every plan:
the built-in set plus any loaded from the configured policy paths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			policies := a.gate.ListPolicies()
			if jsonOutput {
				return printJSON(policies)
			}

			fmt.Printf("%-20s %-9s %-8s %s\n", "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
			for _, p := range policies {
				fmt.Printf("%-20s %-9s %-8v %s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return nil
		},
	}
	return cmd
}
