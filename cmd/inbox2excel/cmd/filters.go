package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var filtersCmd = &cobra.Command{
	Use:     "filters",
	Aliases: []string{"filter"},
	Short:   "Manage saved filters on the server",
}

var filtersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved filters",
	RunE:    runFiltersList,
}

var filtersDeleteCmd = &cobra.Command{
	Use:     "delete <filter-id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a saved filter",
	Args:    cobra.ExactArgs(1),
	RunE:    runFiltersDelete,
}

func init() {
	filtersCmd.AddCommand(filtersListCmd, filtersDeleteCmd)
	rootCmd.AddCommand(filtersCmd)
}

func runFiltersList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	filters, err := client.GetFilters(cmd.Context())
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintFilters(filters)
}

func runFiltersDelete(cmd *cobra.Command, args []string) error {
	id, err := validateAndParseID(args[0])
	if err != nil {
		return err
	}

	_, formatter, client, err := initializeClient(cmd)
	if err != nil {
		return err
	}

	if err := client.DeleteFilter(cmd.Context(), id); err != nil {
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess("Filter deleted successfully")
	return nil
}

// validateAndParseID validates that the argument is a non-empty, valid integer ID
func validateAndParseID(arg string) (int, error) {
	if strings.TrimSpace(arg) == "" {
		return 0, fmt.Errorf("ID cannot be empty")
	}

	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid ID '%s': must be a positive integer", arg)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid ID '%d': must be a positive integer", id)
	}

	return id, nil
}
