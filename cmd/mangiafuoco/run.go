package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a single prompt to completion and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			t := turns.NewTurnBuilder().
				WithMetadata(turns.MetaKeySessionID, uuid.NewString()).
				WithUserPrompt(strings.Join(args, " ")).
				Build()

			updated, err := executeTurn(ctx, rt, t)
			if err != nil {
				return err
			}
			if text := turns.LastAssistantText(updated); text != "" {
				fmt.Println(text)
			}
			return nil
		},
	}
}
