package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// RateLimit configures the per-channel rate limiter.
	RateLimit RateLimitConfig
	// Jitter spreads retry delays by up to this fraction (0-1). Zero keeps
	// delays exact.
	Jitter float64
	// Clock drives timestamps and retry scheduling. Nil means wall clock.
	Clock clock.Clock
	// Verbose enables per-attempt logging.
	Verbose bool
}

type trackedNotification struct {
	n        *models.AlertNotification
	channel  models.AlertChannel
	alert    *models.HealthAlert
	inFlight bool
}

// Dispatcher delivers notifications through the registered senders and runs
// the retry state machine:
//
//	pending -> sent                    (success)
//	pending -> retrying -> pending     (failure with retries left)
//	pending -> failed                  (failure, retries exhausted)
//
// sent and failed are terminal.
type Dispatcher struct {
	registry *Registry
	limiter  *RateLimiter
	clock    clock.Clock
	jitter   float64
	verbose  bool

	mu            sync.Mutex
	notifications map[string]*trackedNotification
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *Registry, opts DispatcherOptions) *Dispatcher {
	var limiter *RateLimiter
	if opts.RateLimit.Enabled {
		limiter = NewRateLimiter(opts.RateLimit)
	}
	return &Dispatcher{
		registry:      registry,
		limiter:       limiter,
		clock:         clock.OrReal(opts.Clock),
		jitter:        opts.Jitter,
		verbose:       opts.Verbose,
		notifications: make(map[string]*trackedNotification),
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.verbose {
		log.Printf("[dispatcher] "+format, args...)
	}
}

// Submit tracks n, makes the first attempt and returns a snapshot.
func (d *Dispatcher) Submit(ctx context.Context, n *models.AlertNotification, ch models.AlertChannel, alert *models.HealthAlert) *models.AlertNotification {
	now := d.clock.Now()
	cp := n.Clone()
	cp.Status = models.NotificationPending
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	d.mu.Lock()
	d.notifications[cp.ID] = &trackedNotification{
		n:       cp,
		channel: ch,
		alert:   alert.Clone(),
	}
	d.mu.Unlock()

	d.attempt(ctx, cp.ID)
	d.updatePendingGauge()

	snap, _ := d.Notification(cp.ID)
	return snap
}

// Deliver makes a single untracked attempt. Errors are sanitized.
func (d *Dispatcher) Deliver(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	if err := d.send(ctx, ch, alert); err != nil {
		return &deliveryError{msg: SanitizeError(err, ch), err: err}
	}
	return nil
}

// RetryDue re-attempts every retrying notification whose next retry time
// has passed and returns how many were attempted.
func (d *Dispatcher) RetryDue(ctx context.Context) int {
	now := d.clock.Now()

	d.mu.Lock()
	var due []string
	for id, t := range d.notifications {
		if t.inFlight || t.n.Status != models.NotificationRetrying {
			continue
		}
		if t.n.NextRetryAt != nil && t.n.NextRetryAt.After(now) {
			continue
		}
		t.n.Status = models.NotificationPending
		t.n.RetryCount++
		t.n.NextRetryAt = nil
		t.n.UpdatedAt = now
		due = append(due, id)
	}
	d.mu.Unlock()

	sort.Strings(due)
	for _, id := range due {
		if ctx.Err() != nil {
			// Shutting down: undo the transition so the attempt is not lost.
			d.requeue(id)
			continue
		}
		d.attempt(ctx, id)
	}
	d.updatePendingGauge()
	return len(due)
}

func (d *Dispatcher) requeue(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.notifications[id]
	if !ok || t.n.Status != models.NotificationPending {
		return
	}
	now := d.clock.Now()
	t.n.Status = models.NotificationRetrying
	t.n.RetryCount--
	t.n.NextRetryAt = &now
}

// attempt performs one delivery of a pending notification.
func (d *Dispatcher) attempt(ctx context.Context, id string) {
	d.mu.Lock()
	t, ok := d.notifications[id]
	if !ok || t.inFlight || t.n.Status != models.NotificationPending {
		d.mu.Unlock()
		return
	}
	t.inFlight = true
	ch := t.channel
	alert := t.alert
	d.mu.Unlock()

	err := d.send(ctx, ch, alert)

	d.mu.Lock()
	defer d.mu.Unlock()
	t.inFlight = false
	now := d.clock.Now()
	n := t.n
	n.UpdatedAt = now

	if err == nil {
		n.Status = models.NotificationSent
		n.SentAt = &now
		n.Error = ""
		n.NextRetryAt = nil
		metrics.NotificationsTotal.WithLabelValues(string(ch.Type), "sent").Inc()
		d.logf("notification %s via %s sent (attempt %d)", n.ID, ch.Name, n.RetryCount+1)
		return
	}

	n.Error = SanitizeError(err, ch)
	if ch.Retry != nil && n.RetryCount < ch.Retry.MaxRetries && !isPermanent(err) {
		delay := applyJitter(RetryDelay(*ch.Retry, n.RetryCount), d.jitter)
		next := now.Add(delay)
		n.Status = models.NotificationRetrying
		n.NextRetryAt = &next
		metrics.NotificationsTotal.WithLabelValues(string(ch.Type), "retrying").Inc()
		d.logf("notification %s via %s failed, retry %d/%d in %s: %s",
			n.ID, ch.Name, n.RetryCount+1, ch.Retry.MaxRetries, delay, n.Error)
		return
	}

	n.Status = models.NotificationFailed
	n.NextRetryAt = nil
	metrics.NotificationsTotal.WithLabelValues(string(ch.Type), "failed").Inc()
	log.Printf("[dispatcher] notification %s for alert %s via %s failed permanently: %s",
		n.ID, n.AlertID, ch.Name, n.Error)
}

// send performs one bounded delivery through the channel's sender.
func (d *Dispatcher) send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) (err error) {
	sender, ok := d.registry.Get(ch.Type)
	if !ok {
		return fmt.Errorf("%w: %q (channel %s)", ErrUnsupportedChannel, ch.Type, ch.Name)
	}
	if cerr := ch.ConfigError(); cerr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChannel, cerr)
	}
	if !d.limiter.AllowAt(ch.Name, d.clock.Now()) {
		metrics.NotificationsRateLimited.WithLabelValues(ch.Name).Inc()
		return fmt.Errorf("%w: channel %s", ErrRateLimited, ch.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, ch.Timeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return sender.Send(ctx, ch, alert)
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnsupportedChannel) || errors.Is(err, ErrInvalidChannel)
}

// Notification returns a snapshot of one notification.
func (d *Dispatcher) Notification(id string) (*models.AlertNotification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.notifications[id]
	if !ok {
		return nil, false
	}
	return t.n.Clone(), true
}

// Notifications returns snapshots of all tracked notifications, oldest first.
func (d *Dispatcher) Notifications() []*models.AlertNotification {
	d.mu.Lock()
	out := make([]*models.AlertNotification, 0, len(d.notifications))
	for _, t := range d.notifications {
		out = append(out, t.n.Clone())
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PruneTerminal drops sent and failed notifications last updated before
// cutoff and returns how many were removed.
func (d *Dispatcher) PruneTerminal(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, t := range d.notifications {
		if t.n.Status.Terminal() && t.n.UpdatedAt.Before(cutoff) {
			delete(d.notifications, id)
			n++
		}
	}
	return n
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.limiter.Stats()
}

func (d *Dispatcher) updatePendingGauge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.notifications {
		if t.n.Status == models.NotificationRetrying {
			n++
		}
	}
	metrics.NotificationsPendingRetry.Set(float64(n))
}

// Close closes the sender registry.
func (d *Dispatcher) Close() error {
	return d.registry.Close()
}
