package cmd

import (
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show this month's extraction usage and plan limits",
	RunE:  runUsage,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent extraction runs stored on the server",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(usageCmd, runsCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	usage, err := client.GetUsage(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintUsage(usage)
}

func runRuns(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	runs, err := client.GetRuns(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRuns(runs)
}
