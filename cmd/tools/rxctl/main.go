// rxctl is the operator CLI: it extracts prescriptions from images, lists
// what is stored and opens a chat on the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/medlens/rxchat/backend/internal/bootstrap"
	"github.com/medlens/rxchat/backend/internal/config"
	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
)

// appState is filled in by the root command before any subcommand runs.
type appState struct {
	app *bootstrap.App
}

func (s *appState) pipeline() *pipeline.Service { return s.app.Pipeline }

func (s *appState) config() *config.Config { return s.app.Config }

func newRootCmd() *cobra.Command {
	st := &appState{}
	var logLevel string

	root := &cobra.Command{
		Use:           "rxctl",
		Short:         "Extract prescriptions from images and chat about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Format)

			app, err := bootstrap.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			st.app = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.app == nil {
				return nil
			}
			return st.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(st),
		newListCmd(st),
		newShowCmd(st),
		newChatCmd(st),
		newWatchCmd(st),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("rxctl failed")
		stop()
		os.Exit(1)
	}
}
