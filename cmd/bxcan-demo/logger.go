package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-bxcan/internal/logging"
)

// setupLogger installs the process logger. level is validated by appConfig.validate.
func setupLogger(format, level string) *slog.Logger {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	l := logging.New(format, lvl, os.Stderr).With("app", "bxcan-demo")
	logging.Set(l)
	return l
}
