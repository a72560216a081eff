package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/autobid/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setup loads and validates the configuration and builds the logger. The
// returned close function flushes the log file, if any.
func (c *CLI) setup() (*config.Config, *log.Logger, func(), error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config %s: %w", c.Config, err)
	}
	logger, closeLog, err := newLogger(cfg.Log, c.Debug)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

func newLogger(cfg *config.LogConfig, debug bool) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = log.DebugLevel
	}

	var w io.Writer = os.Stderr
	closeLog := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotating)
		closeLog = func() { _ = rotating.Close() }
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if cfg.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger, closeLog, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
