package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/internal/compiler"
	"github.com/rendis/botforge/internal/interpreter"
	"github.com/rendis/botforge/internal/validation"
	"github.com/rendis/botforge/pkg/schema"
)

var chatCmd = &cobra.Command{
	Use:   "chat <scenario.json>",
	Short: "Run a scenario as an interactive terminal conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
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
		if result := validation.Validate(g, doc.GlobalVariables); !result.Valid() {
			for _, finding := range result.Findings() {
				fmt.Fprintln(os.Stderr, finding)
			}
			return fmt.Errorf("scenario has validation errors")
		}

		engineName, _ := cmd.Flags().GetString("engine")
		engine, err := conditionEngine(engineName)
		if err != nil {
			return err
		}

		logger := newLogger("error")
		interp := interpreter.New(engine, interpreter.Config{}, logger)
		session := bridge.NewSession("local", nil, logger)
		run, ctx := session.Begin(cmd.Context())

		done := make(chan error, 1)
		go func() {
			err := interp.Execute(ctx, g, run, nil)
			run.Finish(err)
			done <- err
		}()

		reader := bufio.NewReader(os.Stdin)
		printed := 0

		fmt.Printf("--- %s ---\n", doc.BotName)
		for {
			printed = printBotMessages(session, printed)

			switch session.State() {
			case bridge.StateAwaitingInput:
				fmt.Print("> ")
				text, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				if err := session.ProvideInput(session.Generation(), strings.TrimSpace(text)); err != nil {
					return err
				}
			case bridge.StateAwaitingChoice:
				snap := session.Snapshot()
				for i, opt := range snap.Options {
					fmt.Printf("  %d) %s\n", i+1, opt.Label)
				}
				fmt.Print("> ")
				text, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				opt, ok := matchOption(snap.Options, strings.TrimSpace(text))
				if !ok {
					fmt.Println("pick one of the listed options")
					continue
				}
				if err := session.ProvideChoice(session.Generation(), opt.ID); err != nil {
					if schema.IsCode(err, schema.ErrCodeUnknownOption) {
						fmt.Println("pick one of the listed options")
						continue
					}
					return err
				}
			case bridge.StateIdle:
				select {
				case err := <-done:
					printBotMessages(session, printed)
					if err != nil && err != context.Canceled {
						return err
					}
					fmt.Println("--- conversation finished ---")
					return nil
				case <-time.After(10 * time.Millisecond):
				}
			default:
				time.Sleep(10 * time.Millisecond)
			}
		}
	},
}

// printBotMessages prints transcript entries past the already-printed
// offset and returns the new offset.
func printBotMessages(session *bridge.Session, from int) int {
	transcript := session.Snapshot().Transcript
	for _, msg := range transcript[from:] {
		if msg.FromBot {
			fmt.Println(msg.Text)
		}
	}
	return len(transcript)
}

// matchOption resolves user input to an option by 1-based index, id, or label.
func matchOption(options []schema.ChoiceOption, input string) (schema.ChoiceOption, bool) {
	for i, opt := range options {
		if input == fmt.Sprintf("%d", i+1) || input == opt.ID || strings.EqualFold(input, opt.Label) {
			return opt, true
		}
	}
	return schema.ChoiceOption{}, false
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("engine", "expr", "condition engine (expr or cel)")
}
