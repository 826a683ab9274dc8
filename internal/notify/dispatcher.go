package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/contactbox/internal/types"
)

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 10 * time.Second

// Recorder persists the outcome of a delivery attempt.
type Recorder interface {
	RecordNotification(ctx context.Context, rec types.NotificationRecord) error
}

// Dispatcher hands submissions to a Notifier in the background.
// Each submission is attempted once; the outcome is logged and recorded.
type Dispatcher struct {
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. recorder may be nil.
func NewDispatcher(n Notifier, recorder Recorder, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if n == nil {
		n = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{notifier: n, recorder: recorder, logger: logger, timeout: timeout}
}

// Backend names the notifier in use.
func (d *Dispatcher) Backend() string { return d.notifier.Name() }

// Configured reports whether submissions are actually delivered anywhere.
func (d *Dispatcher) Configured() bool {
	_, noop := d.notifier.(Noop)
	return !noop
}

// Dispatch queues sub for delivery and returns immediately. The request
// context's values are kept but its cancellation is not.
// After Close, Dispatch drops the submission.
func (d *Dispatcher) Dispatch(ctx context.Context, sub types.Submission) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("notification dropped after shutdown",
			"component", "notify",
			"submission_id", sub.ID,
		)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.deliver(context.WithoutCancel(ctx), MessageFor(sub))
	}()
}

// Close stops accepting work and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.safeNotify(ctx, msg)

	rec := types.NotificationRecord{
		SubmissionID: msg.SubmissionID,
		EmailType:    types.EmailTypeAdminAlert,
		Status:       types.NotificationSent,
	}
	switch {
	case err == nil:
		d.logger.Debug("notification sent",
			"component", "notify",
			"backend", d.notifier.Name(),
			"submission_id", msg.SubmissionID,
		)
	case errors.Is(err, ErrSkipped):
		rec.Status = types.NotificationSkipped
	default:
		rec.Status = types.NotificationFailed
		rec.Error = err.Error()
		d.logger.Warn("notification failed",
			"component", "notify",
			"backend", d.notifier.Name(),
			"submission_id", msg.SubmissionID,
			"email", RedactEmail(msg.Email),
			"error", err,
		)
	}

	if d.recorder == nil {
		return
	}
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelRecord()
	if err := d.recorder.RecordNotification(recordCtx, rec); err != nil {
		d.logger.Warn("notification outcome not recorded",
			"component", "notify",
			"submission_id", msg.SubmissionID,
			"error", err,
		)
	}
}

// safeNotify converts a notifier panic into an error.
func (d *Dispatcher) safeNotify(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Notify(ctx, msg)
}
