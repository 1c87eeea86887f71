package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/policy"
)

func newPlanCommand(version string) *cobra.Command {
	var (
		names       []string
		state       string
		upgrade     bool
		updateCache bool
		force       bool
		showDetail  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the planned backend actions without executing",
		Long: `Classify the requested packages and print the plan the engine would
execute, including the policy gate's verdict. Nothing on the system
changes.`,
		Example: `  # What would installing these packages do
  pacrec plan --name htop --name some-aur-tool

  # Show classification detail
  pacrec plan --name htop --detail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			req := &engine.Request{
				Names:       names,
				State:       engine.DesiredState(state),
				Upgrade:     upgrade,
				UpdateCache: updateCache,
				Force:       force,
			}

			plan, classified, err := a.engine.Plan(ctx, req)
			if err != nil {
				return err
			}

			if !showDetail {
				classified = nil
			}
			if err := printPlan(plan, classified); err != nil {
				return err
			}

			verdict, err := a.gate.EvaluatePlan(ctx, plan, &policy.Context{
				Elevated: a.run.Elevated(),
				Force:    force,
			})
			if err != nil {
				return err
			}
			if !jsonOutput {
				for _, v := range verdict.Violations {
					fmt.Printf("policy %s [%s]: %s\n", v.Policy, v.Severity, v.Message)
				}
				if !verdict.Allowed {
					fmt.Println("policy gate: plan would be denied")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&names, "name", "n", nil, "package name or local package file (repeatable)")
	cmd.Flags().StringVarP(&state, "state", "s", "present", "desired state: present, latest or absent")
	cmd.Flags().BoolVar(&upgrade, "upgrade", false, "plan a whole-system upgrade")
	cmd.Flags().BoolVar(&updateCache, "update-cache", false, "plan a database refresh first")
	cmd.Flags().BoolVar(&force, "force", false, "plan with the strict per-operation behavior")
	cmd.Flags().BoolVar(&showDetail, "detail", false, "include per-package classification")

	return cmd
}
