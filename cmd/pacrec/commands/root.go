package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	settingsPath string
	verbose      bool
	jsonOutput   bool

	// Remote execution flags
	sshHost     string
	sshUser     string
	sshPort     int
	sshKeyPath  string
	sshInsecure bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pacrec",
		Short: "pacrec - Arch Linux package state reconciliation",
		Long: `pacrec reconciles the package state of an Arch Linux host against a
desired state: packages present, at their latest version, or absent.

It classifies each requested package by provenance (official repositories,
local package file, or the AUR), plans the minimal set of backend
invocations across pacman, an AUR wrapper (yay, pikaur, trizen) and
makepkg, and executes them in order. Plans pass a policy gate before
anything runs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.PersistentFlags().StringVar(&sshHost, "host", "", "reconcile a remote host over SSH instead of the local one")
	rootCmd.PersistentFlags().StringVar(&sshUser, "ssh-user", "", "SSH user for --host")
	rootCmd.PersistentFlags().IntVar(&sshPort, "ssh-port", 22, "SSH port for --host")
	rootCmd.PersistentFlags().StringVar(&sshKeyPath, "ssh-key", "", "SSH private key for --host")
	rootCmd.PersistentFlags().BoolVar(&sshInsecure, "ssh-insecure", false, "skip host key verification for --host")

	rootCmd.AddCommand(newApplyCommand(version))
	rootCmd.AddCommand(newPlanCommand(version))
	rootCmd.AddCommand(newProbeCommand(version))
	rootCmd.AddCommand(newSyncCommand(version))
	rootCmd.AddCommand(newTaskCommand(version))
	rootCmd.AddCommand(newHistoryCommand(version))
	rootCmd.AddCommand(newPoliciesCommand(version))

	return rootCmd
}
