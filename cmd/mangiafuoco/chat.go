package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
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
				Build()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("\n> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				turns.AppendBlock(t, turns.NewUserTextBlock(line))
				updated, err := executeTurn(ctx, rt, t)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(os.Stderr, "error: %s\n", err)
					continue
				}
				t = updated
			}
		},
	}
}

// executeTurn runs one turn against the loop with an event router attached
// so streaming output reaches the terminal while inference is in flight.
func executeTurn(ctx context.Context, rt *runtime, t *turns.Turn) (*turns.Turn, error) {
	var routerOpts []events.EventRouterOption
	if viper.GetBool("verbose") {
		routerOpts = append(routerOpts, events.WithVerbose(true))
	}
	router, err := events.NewEventRouter(routerOpts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = router.Close() }()

	if viper.GetBool("verbose") {
		router.AddHandler("raw", "chat", router.DumpRawEvents)
	} else {
		router.AddHandler("printer", "chat", printEvent)
	}
	sink := events.NewWatermillSink(router.Publisher, "chat")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var updated *turns.Turn
	eg := errgroup.Group{}
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		var runErr error
		updated, runErr = rt.loop.RunLoop(events.WithEventSinks(ctx, sink), t)
		return runErr
	})
	if err := eg.Wait(); err != nil {
		return updated, err
	}
	return updated, nil
}

func printEvent(msg *message.Message) error {
	defer msg.Ack()

	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		return err
	}
	switch ev := e.(type) {
	case *events.EventPartialCompletion:
		fmt.Print(ev.Delta)
	case *events.EventFinal:
		fmt.Println()
	case *events.EventToolCallExecute:
		fmt.Fprintf(os.Stderr, "\n[tool] %s %s\n", ev.ToolCall.Name, ev.ToolCall.Input)
	case *events.EventToolCallExecutionResult:
		status := "ok"
		if ev.IsError {
			status = "error"
		}
		fmt.Fprintf(os.Stderr, "[tool] %s finished (%s)\n", ev.ToolName, status)
	case *events.EventError:
		fmt.Fprintf(os.Stderr, "\n[error] %s\n", ev.Error_)
	case *events.EventInterrupt:
		fmt.Fprintln(os.Stderr, "\n[interrupted]")
	}
	return nil
}
