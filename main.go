package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
