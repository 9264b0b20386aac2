package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/botforge/internal/compiler"
	"github.com/rendis/botforge/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.json>",
	Short: "Validate a scenario document",
	Long: `Checks a scenario document's shape, rebuilds the graph, and runs the
full semantic validation pass. All findings are reported, not just the first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		if err := validation.ValidateDocument(raw); err != nil {
			return err
		}
		doc, err := compiler.Decode(raw)
		if err != nil {
			return err
		}
		g, err := compiler.FromScenario(doc)
		if err != nil {
			return err
		}

		result := validation.Validate(g, doc.GlobalVariables)
		for _, finding := range result.Findings() {
			fmt.Println(finding)
		}
		if !result.Valid() {
			return fmt.Errorf("%d validation error(s)", len(result.Errors))
		}
		if len(result.Warnings) == 0 {
			fmt.Println("scenario is valid")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
