package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr and, when logFile is set, JSON lines to
// logFile. Missing parent directories are created. If the file still cannot
// be opened the logger writes to stderr only. The returned func closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if logFile == "" {
		return slog.New(textHandler(os.Stderr, level)), noop
	}

	f, err := openLogFile(logFile)
	if err != nil {
		slog.Error("open log file, logging to stderr only", "file", logFile, "error", err)
		return slog.New(textHandler(os.Stderr, level)), noop
	}
	return SetupLoggerWithWriters(os.Stderr, f, level), f.Close
}

// SetupLoggerWithWriters fans records out to a text handler on stderr and a
// JSON handler on file.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		textHandler(stderr, level),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}

func textHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
