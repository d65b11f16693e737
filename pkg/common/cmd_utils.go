package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// ListenSysExit cancels the root context on SIGTERM or SIGINT so the node can drain its servers. A second
// signal while shutting down exits immediately.
func ListenSysExit(logger *zap.Logger, ctxCancel context.CancelFunc) {
	sigterm := make(chan os.Signal, 2)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigterm
		logger.Info("Received signal, shutting down", zap.Stringer("signal", sig))
		ctxCancel()

		sig = <-sigterm
		logger.Warn("Received second signal, exiting without cleanup", zap.Stringer("signal", sig))
		os.Exit(1)
	}()
}
