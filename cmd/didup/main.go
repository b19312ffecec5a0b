// Command didup logs in to didUP Famiglia and prints portal data. It is a
// debugging aid for the client library.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raine/didup-famiglia/internal/config"
	"github.com/raine/didup-famiglia/internal/didup"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	debugFlag bool
	traceFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "didup",
	Short: "Inspect an Argo didUP Famiglia account",
	Long: `Log in to Argo didUP Famiglia and print portal data.

Credentials are read from DIDUP_* environment variables and from config.env in
the user's config directory. When they are missing and the terminal is
interactive, you are asked for them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		setupLogging()
		config.LoadEnvFile()

		missing := config.CheckRequired()
		if len(missing) == 0 {
			return nil
		}
		if !isInteractiveTerminal() {
			return errMissingConfig(missing)
		}
		return runSetupWizard()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log every HTTP round trip")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "with --debug, also log request and response bodies")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	switch {
	case traceFlag:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case debugFlag:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type errMissingConfig []string

func (e errMissingConfig) Error() string {
	return "missing required config: " + strings.Join(e, ", ")
}

// withClient runs fn with a client configured from the environment and closes
// it afterwards.
func withClient(ctx context.Context, fn func(*didup.Client) error) error {
	opts, err := config.FromEnv()
	if err != nil {
		return err
	}
	opts.Debug = opts.Debug || debugFlag || traceFlag
	return didup.WithClient(ctx, opts, fn)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}
