package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"coldchain/internal/platform/config"
)

// New returns a structured logger writing to stdout.
func New(cfg config.Log) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

func NewWithWriter(w io.Writer, cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "coldchaind")
}
