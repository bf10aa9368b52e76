package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/amirphl/marketplace-settlement/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger; file output rotates through lumberjack
func NewLogger(cfg config.LoggingConfig, deployment config.DeploymentConfig) *slog.Logger {
	var writers []io.Writer

	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	w := io.MultiWriter(writers...)
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h).With(
		slog.String("service", "marketplace-settlement"),
		slog.String("version", deployment.Version),
		slog.String("env", deployment.Environment),
	)
}

// ParseLogLevel maps a config level name to a slog level; unknown names mean info
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
