package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const logFileName = "engine.log"

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewFileLogger writes JSON records to <dataDir>/logs/engine.log when debug is
// set and discards everything otherwise. Attributes named like secrets are
// masked before they reach the file.
func NewFileLogger(dataDir string, debug bool) (FileLogger, error) {
	disabled := FileLogger{Logger: Nop(), Close: func() error { return nil }}
	if !debug {
		return disabled, nil
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return disabled, err
	}
	path := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return disabled, err
	}
	return FileLogger{
		Logger:  New(file, slog.LevelDebug),
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}

// New builds a JSON logger on w with secret redaction.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: redactAttr,
	}))
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if !isSecretKey(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, RedactValue(attr.Value.String()))
}
