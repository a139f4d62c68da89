// Package cmd wires abwart's command-line surface.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// BuildVersion, BuildCommit and BuildDate are set via ldflags at release time.
	BuildVersion string
	BuildCommit  string
	BuildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "abwart",
	Short: "abwart - housekeeper for self-hosted OCI registries",
	Long: `abwart discovers distribution/distribution registry containers on a local
container-engine socket, derives retention rules from container labels and/or a
static config file, and deletes image tags on a schedule.`,
	RunE: runServe,
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// Execute runs the root command, which with no arguments starts the housekeeper.
func Execute(version, commit, date string) {
	BuildVersion, BuildCommit, BuildDate = version, commit, date
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("abwart exited with an error")
	}
}
