package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// SignalContext returns a context canceled on the first SIGINT or SIGTERM.
// Cancellation stops dispatch while in-flight items finish. A second signal
// exits immediately with status 130.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			signal.Stop(sigCh)
			return
		}
		log.Warn().Msg("Interrupted: finishing in-flight items, press Ctrl+C again to abort")
		cancel()

		<-sigCh
		log.Error().Msg("Aborted")
		os.Exit(130)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
