package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// SignalContext returns a context cancelled on SIGINT/SIGTERM or when the
// returned cancel func is called.
func SignalContext(parent context.Context, logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			logger.Info().Str("signal", s.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
