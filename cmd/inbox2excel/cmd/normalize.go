package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"inbox2excel/internal/email"
	"inbox2excel/internal/extraction"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>",
	Short: "Print the text the rules are matched against",
	Long: `Print a message body as the extractor sees it. Paragraph ends become
blank lines, <br> becomes a newline and every other tag is removed.

A .eml file is parsed first; any other file is treated as raw HTML.`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	path := args[0]

	var text string
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		msg, err := email.ParseEMLFile(path)
		if err != nil {
			return err
		}
		text = extraction.Normalize(msg.ToExtraction().BodyHTML)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		text = extraction.Normalize(string(data))
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
