package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mangiafuoco",
	Short: "Local coding agent runtime",
	Long: `Mangiafuoco drives a tool-calling agent loop against an OpenAI-compatible
or Ollama chat backend, with hook dispatch and turn snapshot persistence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(viper.GetString("log-level"))
	},
}

func initLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.String("provider", "openai", "Inference backend (openai or ollama)")
	pf.String("model", "gpt-4o-mini", "Model name")
	pf.String("api-key", "", "API key for the OpenAI backend")
	pf.String("db", "", "Path to the turn snapshot database (empty disables persistence)")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("system", "", "System prompt (Go template over turn metadata)")
	pf.StringSlice("allow-tools", nil, "Glob patterns of tools the model may call (empty allows all)")
	pf.Int("max-steps", 0, "Step ceiling per turn (0 uses the default)")
	pf.Bool("yes", false, "Skip interactive tool permission prompts")
	pf.Bool("verbose", false, "Dump raw events while running")

	cobra.CheckErr(viper.BindPFlags(pf))
	viper.SetEnvPrefix("MANGIAFUOCO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newTurnsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
