// Package submission accepts contact-form posts: validate, throttle, persist,
// then hand off to the notification sink.
package submission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/contactbox/internal/audit"
	"github.com/hyperengineering/contactbox/internal/notify"
	"github.com/hyperengineering/contactbox/internal/ratelimit"
	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/hyperengineering/contactbox/internal/validation"
)

// Creator persists a validated draft.
type Creator interface {
	CreateSubmission(ctx context.Context, draft types.Draft) (*types.Submission, error)
}

// Dispatcher receives each accepted submission. It must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub types.Submission)
}

// Client is the request origin as seen by the HTTP layer.
type Client struct {
	IP        string
	UserAgent string
}

// Service runs the intake pipeline.
type Service struct {
	store    Creator
	limiter  ratelimit.Limiter
	notifier Dispatcher
	audit    *audit.Recorder
	limits   validation.Limits
	logger   *slog.Logger
}

// Config wires a Service. Limiter, Notifier and Audit may be nil.
type Config struct {
	Store    Creator
	Limiter  ratelimit.Limiter
	Notifier Dispatcher
	Audit    *audit.Recorder
	Limits   validation.Limits
	Logger   *slog.Logger
}

// NewService creates an intake Service.
func NewService(cfg Config) *Service {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limits == (validation.Limits{}) {
		cfg.Limits = validation.DefaultLimits()
	}
	return &Service{
		store:    cfg.Store,
		limiter:  cfg.Limiter,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		limits:   cfg.Limits,
		logger:   cfg.Logger,
	}
}

// Submit validates raw, applies the per-IP limit, stores the submission and
// queues a notification.
//
// Errors: *validation.ValidationError for bad input, *ratelimit.LimitedError
// when throttled, anything else is a server fault.
func (s *Service) Submit(ctx context.Context, raw types.RawSubmission, client Client) (*types.Submission, error) {
	draft, verr := validation.ValidateSubmission(raw, s.limits)
	if verr != nil {
		s.audit.Record(ctx, types.EventValidationFailed, client.IP, map[string]any{
			"field":  verr.Field,
			"reason": verr.Reason,
		})
		return nil, verr
	}
	draft.IPAddress = client.IP
	draft.UserAgent = validation.Truncate(client.UserAgent, 500)

	if err := s.limiter.Allow(ctx, client.IP); err != nil {
		if le, ok := ratelimit.AsLimited(err); ok {
			s.logger.Warn("submission rate limited",
				"component", "submission",
				"action", "rate_limited",
				"ip", client.IP,
				"retry_after_s", le.RetryAfterSeconds(),
			)
			s.audit.Record(ctx, types.EventRateLimited, client.IP, map[string]any{
				"retry_after": le.RetryAfterSeconds(),
			})
			return nil, le
		}
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	sub, err := s.store.CreateSubmission(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	s.logger.Info("submission accepted",
		"component", "submission",
		"action", "created",
		"submission_id", sub.ID,
		"email", notify.RedactEmail(sub.Email),
		"ip", client.IP,
	)
	s.audit.Record(ctx, types.EventSubmissionCreated, client.IP, map[string]any{
		"submission_id": sub.ID,
		"email":         notify.RedactEmail(sub.Email),
	})

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, *sub)
	}
	return sub, nil
}
