package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pacrec/pacrec/pkg/config"
	"github.com/pacrec/pacrec/pkg/engine"
)

func newSyncCommand(version string) *cobra.Command {
	var (
		manifestFiles []string
		scriptFile    string
		checkMode     bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the host against a declarative manifest",
		Long: `Load a CUE manifest of desired package states, optionally extend it with
package groups computed by a Starlark script, and reconcile the host
against it group by group.`,
		Example: `  # Apply a manifest
  pacrec sync -f packages.cue

  # Combine a manifest with a computed package set
  pacrec sync -f packages.cue --script roles.star

  # Dry run
  pacrec sync -f packages.cue --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parser := config.NewManifestParser()
			parsed, err := parser.Parse(ctx, manifestFiles)
			if err != nil {
				return err
			}
			if len(parsed.Errors) > 0 {
				for _, e := range parsed.Errors {
					fmt.Fprintf(os.Stderr, "manifest error: %s:%d:%d %s\n", e.File, e.Line, e.Column, e.Message)
				}
				return engine.NewInvalidInputError("manifest validation failed")
			}

			if scriptFile != "" {
				script, err := os.ReadFile(scriptFile)
				if err != nil {
					return fmt.Errorf("failed to read script: %w", err)
				}
				groups, err := parser.EvaluatePackages(ctx, string(script), nil)
				if err != nil {
					return err
				}
				if parsed.Manifest.Groups == nil {
					parsed.Manifest.Groups = map[string]config.ManifestGroup{}
				}
				for name, group := range groups {
					parsed.Manifest.Groups[name] = group
				}
			}

			a, err := buildApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			requests := parsed.Requests()
			if len(requests) == 0 {
				fmt.Println("manifest declares nothing to reconcile")
				return nil
			}

			var failed bool
			for _, req := range requests {
				req.CheckMode = checkMode

				outcome, err := a.runRequest(ctx, req)
				if outcome != nil {
					if perr := printOutcome(outcome); perr != nil {
						return perr
					}
				}
				if err != nil {
					// keep reconciling the remaining groups
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more manifest groups failed")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&manifestFiles, "file", "f", nil, "manifest file (repeatable, files are unified)")
	cmd.Flags().StringVar(&scriptFile, "script", "", "Starlark script computing additional package groups")
	cmd.Flags().BoolVar(&checkMode, "check", false, "report what would change without changing it")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
