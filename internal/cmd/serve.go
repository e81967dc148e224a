package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lifxd/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var resetCache bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: webhook server, scheduler and Lua actions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(true)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Info().Str("config", opts.configPath).Msg("Starting lifxd")

			application, err := app.New(cfg, opts.configPath)
			if err != nil {
				return err
			}

			if resetCache {
				log.Info().Msg("Clearing cached lights and scenes (--reset-cache)")
				if err := application.ClearCache(); err != nil {
					log.Warn().Err(err).Msg("Failed to clear cache")
				}
			}

			ctx := app.SignalContext()
			if err := application.Start(ctx); err != nil {
				_ = application.Stop()
				return err
			}

			application.Wait()

			if err := application.Stop(); err != nil {
				log.Error().Err(err).Msg("Error during shutdown")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resetCache, "reset-cache", false, "clear cached lights and scenes on startup")
	return cmd
}
