// Package cmd implements the modhost command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	// Lua symbol files in plugin archives.
	_ "github.com/GoCodeAlone/modhost/script"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modhost v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for modhost.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modhost",
		Short: "modhost - a capability-checked plugin host",
		Long: `modhost loads the plugins named in a plugin list, checks their declared
dependencies and runs them under the capabilities they were granted.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewListCommand())
	return cmd
}
