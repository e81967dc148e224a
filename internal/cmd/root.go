// Package cmd implements the lifxd command line: the daemon and one-shot
// commands against the LIFX cloud API.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lifxd/internal/config"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

type rootOptions struct {
	configPath string
	token      string
	logLevel   string
	showLimits bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "lifxd",
		Short:         "LIFX cloud client and automation daemon",
		Long:          "lifxd - LIFX cloud client and automation daemon\n\nUse the subcommands to query and control lights, or run the daemon with serve.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to configuration file")
	pf.StringVar(&opts.token, "token", "", "LIFX access token (overrides lifx.token)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	pf.BoolVar(&opts.showLimits, "show-limits", false, "print the API rate limit after the command")

	root.AddCommand(
		newServeCmd(opts),
		newLightsCmd(opts),
		newScenesCmd(opts),
		newColorCmd(opts),
		newStateCmd(opts),
		newSceneCmd(opts),
		newToggleCmd(opts),
		newEffectCmd(opts, "breathe"),
		newEffectCmd(opts, "pulse"),
		newCycleCmd(opts),
	)

	return root
}

// Execute runs the command line and returns the first error.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the config file. One-shot commands tolerate a missing file
// when a token comes from --token or LIFX_TOKEN; serve does not.
func (o *rootOptions) loadConfig(requireFile bool) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !requireFile {
		cfg, err = config.Parse(nil)
		if err == nil {
			cfg.LIFX.Token = os.Getenv("LIFX_TOKEN")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}

	if o.token != "" {
		cfg.LIFX.Token = o.token
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)
	return cfg, nil
}

// client builds an API client for one-shot commands.
func (o *rootOptions) client() (*lifx.Client, error) {
	cfg, err := o.loadConfig(false)
	if err != nil {
		return nil, err
	}
	if cfg.LIFX.Token == "" {
		return nil, errors.New("no LIFX token: set lifx.token, LIFX_TOKEN or --token")
	}

	return lifx.NewClient(cfg.LIFX.Token,
		lifx.WithBaseURL(cfg.LIFX.BaseURL),
		lifx.WithTimeout(cfg.LIFX.Timeout.Duration()),
		lifx.WithUserAgent(cfg.LIFX.UserAgent),
	), nil
}

// withClient runs fn against a fresh client and reports the rate limit
// afterwards when --show-limits is set.
func (o *rootOptions) withClient(cmd *cobra.Command, fn func(c *lifx.Client) error) error {
	c, err := o.client()
	if err != nil {
		return err
	}
	defer c.Close()

	err = fn(c)
	if o.showLimits {
		printRateLimit(cmd.ErrOrStderr(), c.RateLimit())
	}
	if err != nil {
		return describeError(err)
	}
	return nil
}

// describeError prefixes API errors with their kind.
func describeError(err error) error {
	kind := lifx.KindOf(err)
	if kind == lifx.KindNone || kind == lifx.KindOther {
		return err
	}
	return fmt.Errorf("%s: %w", kind, err)
}

func setupLogging(level string, useJSON bool, colors bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
