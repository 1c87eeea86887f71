package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(version string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past reconciliation runs",
		Long: `List the reconciliation runs recorded in the journal, or show one run
with its actions when a run ID is given.`,
		Example: `  # Recent runs
  pacrec history

  # One run in full
  pacrec history 3f1c9a2e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.journal == nil {
				return fmt.Errorf("journal is disabled in settings")
			}

			if len(args) == 1 {
				run, actions, err := a.journal.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(struct {
						Run     interface{} `json:"run"`
						Actions interface{} `json:"actions"`
					}{run, actions})
				}
				fmt.Printf("run:       %s\n", run.ID)
				fmt.Printf("started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("requested: %s (%s)\n", run.Requested, run.State)
				fmt.Printf("changed:   %v  failed: %v\n", run.Changed, run.Failed)
				if run.Handler != "" {
					fmt.Printf("handler:   %s\n", run.Handler)
				}
				fmt.Printf("msg:       %s\n", run.Msg)
				if len(actions) > 0 {
					fmt.Println("actions:")
					for _, action := range actions {
						marker := " "
						if action.Changed {
							marker = "*"
						}
						fmt.Printf("  %s %-14s %-12s %s (%s)\n",
							marker, action.Operation, action.Backend, action.Targets, action.Duration)
					}
				}
				return nil
			}

			runs, err := a.journal.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			for _, run := range runs {
				status := "unchanged"
				if run.Changed {
					status = "changed"
				}
				if run.Failed {
					status = "failed"
				}
				fmt.Printf("%s  %s  %-9s  %s\n",
					run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), status, run.Requested)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}
