package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperengineering/contactbox/internal/config"
	"github.com/hyperengineering/contactbox/internal/notify"
	"github.com/hyperengineering/contactbox/internal/ratelimit"
	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/validation"
)

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildLimiter returns the configured limiter and a func releasing its resources.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, db *store.SQLiteStore) (ratelimit.Limiter, func() error, error) {
	window := time.Duration(cfg.Window)
	switch cfg.Backend {
	case "redis":
		rl, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix, cfg.Limit, window)
		if err != nil {
			return nil, nil, err
		}
		if err := rl.Ping(ctx); err != nil {
			rl.Close()
			return nil, nil, fmt.Errorf("redis rate limiter: %w", err)
		}
		return rl, rl.Close, nil
	default:
		sl, err := ratelimit.NewStoreLimiter(db, cfg.Limit, window)
		if err != nil {
			return nil, nil, err
		}
		return sl, func() error { return nil }, nil
	}
}

func buildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.Backend {
	case "ses":
		return notify.NewSESNotifier(ctx, notify.SESConfig{
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Sender:    cfg.Sender,
			Recipient: cfg.Recipient,
		})
	case "none":
		return notify.Noop{}, nil
	default:
		return notify.NewLogNotifier(logger), nil
	}
}

func fieldLimits(l config.LimitsConfig) validation.Limits {
	return validation.Limits{
		NameMax:    l.NameMax,
		EmailMax:   l.EmailMax,
		MessageMin: l.MessageMin,
		MessageMax: l.MessageMax,
		TagsMax:    l.TagsMax,
		TagMax:     l.TagMax,
	}
}
