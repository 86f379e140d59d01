// Package cmd provides the CLI commands for runforge.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// verbose enables verbose output
	verbose bool
	// outputFormat specifies the output format (json, plain)
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "runforge",
	Short: "Workflow run coordination service",
	Long: `Runforge coordinates tenant workflow runs: it validates inputs,
meters credits against per-tenant pools, dispatches jobs to the worker
queue and supports partial-failure retry without double-charging.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// NewRootCmd creates a fresh root command for testing.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "runforge",
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
	}
	addGlobalFlags(cmd)
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServerCmd())
	return cmd
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")
}

func init() {
	addGlobalFlags(rootCmd)
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServerCmd())
}
