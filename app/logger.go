package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// newLogger writes text in development and JSON otherwise. With a Sentry DSN,
// error records are also sent to Sentry. The returned func flushes Sentry.
func newLogger(w io.Writer, cfg *Config) (*slog.Logger, func()) {
	var handler slog.Handler
	if cfg.isProduction() {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	flush := func() {}

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Environment,
			Release:     cfg.Version,
		})
		if err == nil {
			handler = slogmulti.Fanout(handler, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			flush = func() { sentry.Flush(2 * time.Second) }
		} else {
			slog.New(handler).Error("could not initialise sentry", slog.String("error", err.Error()))
		}
	}

	return slog.New(handler), flush
}
