package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/zerowrap"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"abwart/internal/container"
	"abwart/internal/reconciler"
)

// runServe wires the container engine adapter and the discovery/reconciler
// loop together and blocks until SIGINT/SIGTERM (spec.md §4.6, grounded on
// the teacher's cmd/start.go bootstrap).
func runServe(cmd *cobra.Command, args []string) error {
	eng, err := container.NewEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to container engine socket")
	}

	usecaseLog := zerowrap.New(zerowrap.Config{Level: "info"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := reconciler.New(eng, "", usecaseLog)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	select {
	case <-sigChan:
		log.Info().Msg("shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil && err != context.Canceled {
			return err
		}
	}

	return nil
}
