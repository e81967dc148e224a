package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("lifxd failed")
		os.Exit(1)
	}
}
