package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show the target host's package backends",
		Long: `Probe the target host for available backends: pacman, the installed AUR
wrappers in selection priority order, and the source-build toolchain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			type probeReport struct {
				Pacman   string            `json:"pacman"`
				Elevated bool              `json:"elevated"`
				Wrappers map[string]string `json:"wrappers"`
				Makepkg  string            `json:"makepkg,omitempty"`
				Fakeroot string            `json:"fakeroot,omitempty"`
			}

			report := probeReport{
				Pacman:   a.pacmanPath,
				Elevated: a.run.Elevated(),
				Wrappers: map[string]string{},
			}
			for _, kind := range a.caps.Kinds() {
				report.Wrappers[string(kind)] = a.caps.Path(kind)
			}
			if path, err := a.run.LookPath("makepkg"); err == nil {
				report.Makepkg = path
			}
			if path, err := a.run.LookPath("fakeroot"); err == nil {
				report.Fakeroot = path
			}

			if jsonOutput {
				return printJSON(report)
			}

			fmt.Printf("pacman:   %s\n", report.Pacman)
			fmt.Printf("elevated: %v\n", report.Elevated)
			if len(report.Wrappers) == 0 {
				fmt.Println("wrappers: none")
			} else {
				fmt.Println("wrappers:")
				for _, kind := range a.caps.Kinds() {
					fmt.Printf("  %-8s %s\n", kind, a.caps.Path(kind))
				}
			}
			if report.Makepkg != "" {
				fmt.Printf("makepkg:  %s\n", report.Makepkg)
			} else {
				fmt.Println("makepkg:  not found (source builds unavailable)")
			}
			if report.Fakeroot != "" {
				fmt.Printf("fakeroot: %s\n", report.Fakeroot)
			}
			return nil
		},
	}
	return cmd
}
