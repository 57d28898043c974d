package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/voxdispatch/internal/config"
)

// newLogger builds the process logger. Logs go to stderr because stdout
// carries MCP frames. When a log file is configured it receives a copy and is
// rotated by lumberjack. The returned func closes the file.
func newLogger(sc config.ServerConfig, level *slog.LevelVar, stderr io.Writer) (*slog.Logger, func()) {
	w := stderr
	closeFn := func() {}
	if sc.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   sc.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(stderr, lj)
		closeFn = func() { _ = lj.Close() }
	}

	var h slog.Handler
	switch sc.LogFormat {
	case config.LogFormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case config.LogFormatTint:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    sc.LogFile != "",
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h), closeFn
}
