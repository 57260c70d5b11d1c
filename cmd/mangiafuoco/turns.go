package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/mangiafuoco/pkg/store"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

func newTurnsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "Inspect stored turn snapshots",
	}
	cmd.AddCommand(newTurnsListCommand())
	cmd.AddCommand(newTurnsShowCommand())
	return cmd
}

func openStore() (*store.TurnStore, error) {
	dbPath := viper.GetString("db")
	if dbPath == "" {
		return nil, errors.New("no snapshot database; pass --db")
	}
	return store.Open(dbPath)
}

func newTurnsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = ts.Close() }()

			infos, err := ts.ListTurns(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TURN\tSESSION\tPHASE\tSNAPSHOTS\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					info.TurnID, info.SessionID, info.Phase, info.Snapshots,
					info.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newTurnsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <turn-id>",
		Short: "Print the latest snapshot of a turn as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = ts.Close() }()

			t, err := ts.LoadTurn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return errors.Errorf("no snapshot for turn %s", args[0])
			}
			data, err := turns.MarshalTurnYAML(t)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
