package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/producer"
	"github.com/webitel/post-feed-service/internal/store/sqlite"
)

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ProvideLogger builds the process logger. log.level follows the config
// file at runtime; the format is fixed at start.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("service", ServiceName, "version", version)

	cfg.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Error("CONFIG_RELOAD_FAILED", "err", err)
			return
		}
		level.Set(parseLevel(next.Log.Level))
		logger.Info("CONFIG_RELOADED", "log_level", level.Level().String())
	})

	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

// SeedAuthors fills the author directory on start. Existing ids are kept.
func SeedAuthors(ctx context.Context, store *sqlite.Store, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Store.SeedAuthors <= 0 {
		return nil
	}
	authors := producer.NewGenerator(cfg.Producer.Seed, cfg.Store.SeedAuthors).Authors(cfg.Store.SeedAuthors)
	if err := store.UpsertAuthors(ctx, authors); err != nil {
		return err
	}
	logger.Info("AUTHORS_SEEDED", "count", len(authors))
	return nil
}
