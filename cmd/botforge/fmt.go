package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/botforge/internal/compiler"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt <scenario.json>",
	Short: "Rewrite a scenario document in canonical form",
	Long: `Decodes a scenario document and re-encodes it canonically: nodes sorted
by id, keys sorted, stable indentation. Two scenarios describing the same
bot always format to identical bytes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, err := compiler.Decode(raw)
		if err != nil {
			return err
		}
		// Round-trip through the graph so the output is the same
		// canonical form a save or export would produce.
		g, err := compiler.FromScenario(doc)
		if err != nil {
			return err
		}
		canonical := compiler.ToScenario(g, compiler.Meta{
			BotName:         doc.BotName,
			Token:           doc.Token,
			GlobalVariables: doc.GlobalVariables,
		})
		data, err := compiler.Encode(canonical)
		if err != nil {
			return err
		}

		if write, _ := cmd.Flags().GetBool("write"); write {
			return os.WriteFile(args[0], data, 0o644)
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fmtCmd)
	fmtCmd.Flags().BoolP("write", "w", false, "write result back to the file instead of stdout")
}
