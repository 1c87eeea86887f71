package commands

import (
	"github.com/spf13/cobra"

	"github.com/pacrec/pacrec/pkg/engine"
)

func newApplyCommand(version string) *cobra.Command {
	var (
		names       []string
		state       string
		upgrade     bool
		updateCache bool
		force       bool
		extraArgs   string
		checkMode   bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile package state",
		Long: `Reconcile the target host's package state: install, upgrade or remove
the named packages, upgrade the whole system, or refresh the package
databases. The minimal set of backend invocations is computed first and
passed through the policy gate.`,
		Example: `  # Ensure packages are installed
  pacrec apply --name htop --name tmux

  # Ensure a package is at its latest version, refreshing the databases first
  pacrec apply --name yay-bin --state latest --update-cache

  # Remove a package
  pacrec apply --name nano --state absent

  # Upgrade the whole system
  pacrec apply --upgrade

  # See what would change without changing it
  pacrec apply --name htop --check`,
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
				ExtraArgs:   extraArgs,
				CheckMode:   checkMode,
			}

			outcome, err := a.runRequest(ctx, req)
			if outcome != nil {
				if perr := printOutcome(outcome); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&names, "name", "n", nil, "package name or local package file (repeatable)")
	cmd.Flags().StringVarP(&state, "state", "s", "present", "desired state: present, latest or absent")
	cmd.Flags().BoolVar(&upgrade, "upgrade", false, "upgrade all installed packages")
	cmd.Flags().BoolVar(&updateCache, "update-cache", false, "refresh the package databases first")
	cmd.Flags().BoolVar(&force, "force", false, "apply the strict per-operation behavior")
	cmd.Flags().StringVar(&extraArgs, "extra-args", "", "extra arguments passed to the package manager verbatim")
	cmd.Flags().BoolVar(&checkMode, "check", false, "report what would change without changing it")

	return cmd
}
