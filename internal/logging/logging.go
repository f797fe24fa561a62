package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LastSuffix names the copy of the previous run's log kept by Rotate.
const LastSuffix = ".last"

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger opens filename for appending and returns a logger writing text
// lines (timestamp first) to it, mirrored to console when console is non-nil.
// The returned file stays open so external tools can append their stderr.
func NewLogger(filename string, level slog.Level, console io.Writer) (*slog.Logger, *os.File, error) {
	file, err := os.OpenFile(
		filename,
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}),
	}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(&multiHandler{handlers: handlers}), file, nil
}

// Rotate discards filename.last, moves filename to filename.last and leaves
// an empty filename in its place.
func Rotate(filename string) error {
	last := filename + LastSuffix
	if err := os.Remove(last); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", last, err)
	}
	if err := os.Rename(filename, last); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate %s: %w", filename, err)
	}
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	return file.Close()
}
