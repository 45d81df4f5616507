package main

import (
	"io"
	"log/slog"
	"os"

	"mailanon/internal/platform/config"
	"mailanon/internal/platform/logger"
)

// setupLogger builds the run logger and stamps every record with the run
// identity.
func setupLogger(cfg config.Log, w io.Writer, command, runID string) *slog.Logger {
	return logger.New(cfg.Level, cfg.Format, w).With(
		"command", command,
		"run_id", runID,
		"version", Version,
		"pid", os.Getpid(),
	)
}
