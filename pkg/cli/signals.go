package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupSignalHandler returns a context canceled on the first SIGINT or
// SIGTERM. Until stop is called, a second signal exits the process
// immediately with status 1.
func SetupSignalHandler() (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	var once sync.Once

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case <-stopped:
			return
		}

		select {
		case <-sigChan:
			slog.Warn("second signal, exiting without graceful shutdown")
			os.Exit(1)
		case <-stopped:
		}
	}()

	return ctx, func() {
		once.Do(func() {
			cancel()
			close(stopped)
		})
	}
}
