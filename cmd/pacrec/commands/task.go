package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pacrec/pacrec/pkg/envelope"
)

func newTaskCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run one task from a JSON envelope on stdin",
		Long: `Read a JSON task request from stdin, reconcile, and write a JSON result
to stdout. This is the integration surface for automation frameworks:
the process exit code is 0 whenever a result was produced, including a
failed one, so the caller inspects the result's failed field.`,
		Example: `  echo '{"name": ["htop"], "state": "present"}' | pacrec task`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			enc := envelope.NewEncoder(os.Stdout)

			req, err := envelope.NewDecoder(os.Stdin).Decode()
			if err != nil {
				return enc.Encode(envelope.ResultFromError(err))
			}

			a, err := buildApp(ctx, version)
			if err != nil {
				return enc.Encode(envelope.ResultFromError(err))
			}
			defer a.Close(ctx)

			outcome, err := a.runRequest(ctx, req.EngineRequest())
			if err != nil {
				return enc.Encode(envelope.ResultFromError(err))
			}
			return enc.Encode(envelope.ResultFromOutcome(outcome))
		},
	}
	return cmd
}
