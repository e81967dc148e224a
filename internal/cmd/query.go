package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

func newLightsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lights [selector]",
		Short: "List lights matching a selector (default all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *lifx.Client) error {
				lights, err := c.ListLights(cmd.Context(), selectorArg(args))
				if err != nil {
					return err
				}
				renderLights(cmd.OutOrStdout(), lights)
				return nil
			})
		},
	}
}

func newScenesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "List scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(c *lifx.Client) error {
				scenes, err := c.ListScenes(cmd.Context())
				if err != nil {
					return err
				}
				renderScenes(cmd.OutOrStdout(), scenes)
				return nil
			})
		},
	}
}

func newColorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "color <color>",
		Short: "Validate a color string and show how the API interprets it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *lifx.Client) error {
				color, err := c.ValidateColor(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				renderColor(cmd.OutOrStdout(), color)
				return nil
			})
		},
	}
}

func selectorArg(args []string) string {
	if len(args) == 0 {
		return "all"
	}
	return args[0]
}
