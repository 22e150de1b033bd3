package minor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"guardrail/internal/minor/metrics"
	dErrors "guardrail/pkg/domain-errors"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/circuit"
)

const (
	defaultQueueSize      = 256
	defaultMaxAttempts    = 5
	defaultDeliverTimeout = 5 * time.Second
	defaultProbeInterval  = 30 * time.Second
)

var errCircuitOpen = errors.New("delivery circuit open")

// Dispatcher drains the notification queue into a Deliverer. Every outcome
// is written back to the store and audited.
type Dispatcher struct {
	store          Store
	deliverer      Deliverer
	auditor        AuditRecorder
	breaker        *circuit.Breaker
	queue          chan *Notification
	logger         *slog.Logger
	metrics        *metrics.Metrics
	maxAttempts    int
	deliverTimeout time.Duration
	probeInterval  time.Duration
	clock          func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Notification, n)
		}
	}
}

func WithBreaker(b *circuit.Breaker) DispatcherOption {
	return func(d *Dispatcher) {
		if b != nil {
			d.breaker = b
		}
	}
}

func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithProbeInterval sets how often one delivery is let through while the
// breaker is open.
func WithProbeInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.probeInterval = interval
	}
}

func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

func NewDispatcher(store Store, deliverer Deliverer, auditor AuditRecorder, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	d := &Dispatcher{
		store:          store,
		deliverer:      deliverer,
		auditor:        auditor,
		breaker:        circuit.New("minor-notifications"),
		queue:          make(chan *Notification, defaultQueueSize),
		logger:         slog.Default(),
		maxAttempts:    defaultMaxAttempts,
		deliverTimeout: defaultDeliverTimeout,
		probeInterval:  defaultProbeInterval,
		clock:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Enqueue implements Handoff.
func (d *Dispatcher) Enqueue(n *Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		return false
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-d.queue:
			// The outcome is stored and audited; a failure stays queued for Redeliver.
			_ = d.Deliver(ctx, n)
		}
	}
}

// Deliver sends one notification now. A failure is returned as
// NotificationDeliveryFailure after it has been recorded.
func (d *Dispatcher) Deliver(ctx context.Context, n *Notification) error {
	if n.Suppressed || n.Delivered() {
		return nil
	}
	// Redeliver may queue a copy of a notification that was delivered since.
	if current, err := d.store.FindByID(ctx, n.ID); err == nil && current.Delivered() {
		return nil
	}
	if !d.allow() {
		return d.failed(ctx, n, errCircuitOpen)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	err := d.deliverer.Deliver(deliverCtx, *n)
	cancel()
	if err != nil {
		_, change := d.breaker.RecordFailure()
		if change.Opened {
			d.logger.WarnContext(ctx, "notification delivery circuit opened", "breaker", d.breaker.Name())
		}
		d.circuitGauge()
		return d.failed(ctx, n, err)
	}
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.InfoContext(ctx, "notification delivery circuit closed", "breaker", d.breaker.Name())
	}
	d.circuitGauge()
	return d.delivered(ctx, n)
}

// allow lets every delivery through while closed and one probe per interval
// while open.
func (d *Dispatcher) allow() bool {
	if !d.breaker.IsOpen() {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	if now.Sub(d.lastProbe) < d.probeInterval {
		return false
	}
	d.lastProbe = now
	return true
}

func (d *Dispatcher) delivered(ctx context.Context, n *Notification) error {
	at := d.clock()
	if err := d.store.MarkSent(ctx, n.ID, at); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark notification sent",
			"notification_id", n.ID,
			"error", err,
		)
	}
	sentAt := at
	n.SentAt = &sentAt
	n.Attempts++
	d.count("delivered")

	if _, err := d.auditor.Record(ctx, notificationEntry(n, audit.ActionNotificationDelivered, string(n.Trigger), at)); err != nil {
		d.logger.ErrorContext(ctx, "CRITICAL: failed to audit notification delivery",
			"notification_id", n.ID,
			"error", err,
		)
	}
	return nil
}

func (d *Dispatcher) failed(ctx context.Context, n *Notification, cause error) error {
	if err := d.store.MarkFailed(ctx, n.ID, cause.Error()); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark notification failed",
			"notification_id", n.ID,
			"error", err,
		)
	}
	n.Attempts++
	n.LastError = cause.Error()
	outcome := "failed"
	if errors.Is(cause, errCircuitOpen) {
		outcome = "circuit_open"
	}
	d.count(outcome)

	d.logger.WarnContext(ctx, "minor notification delivery failed",
		"notification_id", n.ID,
		"minor_account_id", n.MinorAccountID,
		"attempts", n.Attempts,
		"error", cause,
	)
	if _, err := d.auditor.Record(ctx, notificationEntry(n, audit.ActionNotificationFailed, cause.Error(), d.clock())); err != nil {
		d.logger.ErrorContext(ctx, "CRITICAL: failed to audit notification failure",
			"notification_id", n.ID,
			"error", err,
		)
	}
	return dErrors.Wrap(cause, dErrors.CodeDeliveryFailed, "notification delivery failed")
}

// Redeliver queues notifications that were never delivered and still have
// attempts left. It returns how many were queued.
func (d *Dispatcher) Redeliver(ctx context.Context, limit int) (int, error) {
	pending, err := d.store.Undelivered(ctx, d.maxAttempts, limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeEngineUnavailable, "failed to load undelivered notifications")
	}
	queued := 0
	for _, n := range pending {
		if !d.Enqueue(n) {
			break
		}
		queued++
	}
	if queued > 0 {
		d.logger.InfoContext(ctx, "notifications queued for redelivery", "count", queued)
	}
	return queued, nil
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.IncDelivery(outcome)
	}
}

func (d *Dispatcher) circuitGauge() {
	if d.metrics != nil {
		d.metrics.SetCircuitOpen(d.breaker.IsOpen())
	}
}
