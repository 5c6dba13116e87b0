package notify

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"laserops/pkg/backoff"
	"laserops/pkg/circuitbreaker"
	"laserops/pkg/cloudevent"
)

// Hardcoded delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// Config holds configuration for the webhook notifier.
type Config struct {
	URL         string        // destination webhook
	SigningKey  string        // HMAC key, empty = unsigned
	BufferSize  int           // pending events buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 4)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Webhook delivers lifecycle events to one webhook destination.
// Events are queued in a bounded channel and delivered by a worker pool;
// a full buffer drops the event rather than blocking the lifecycle path.
type Webhook struct {
	queue   chan *event
	sender  *cloudevent.Sender
	breaker *circuitbreaker.Breaker
	config  Config
	host    string
	logger  *slog.Logger
	metrics MetricsRecorder

	// Internal counters (for Stats())
	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// NewWebhook creates a webhook notifier and starts its workers.
func NewWebhook(cfg Config, metrics MetricsRecorder) *Webhook {
	cfg = cfg.withDefaults()

	w := &Webhook{
		queue:  make(chan *event, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		config:   cfg,
		host:     extractHost(cfg.URL),
		logger:   slog.With("component", "notifier"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	w.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go w.worker()
	}

	if metrics != nil {
		go w.reportQueueSize()
	}

	w.logger.Info("Notifier started", "destination", w.host, "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return w
}

// Publish queues a lifecycle event for async delivery.
func (w *Webhook) Publish(eventType, subject string, data map[string]any) {
	if w.closed.Load() {
		return
	}

	ev := &event{
		payload: cloudevent.New(eventType, EventSource, subject, uuid.NewString(), data),
	}

	select {
	case w.queue <- ev:
		w.queued.Add(1)
	default:
		w.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifierDropped(context.Background())
		}
		w.logger.Warn("Event dropped, buffer full", "type", eventType, "subject", subject)
	}
}

// Stats returns current notifier statistics.
func (w *Webhook) Stats() Stats {
	return Stats{
		QueueDepth:   len(w.queue),
		Queued:       w.queued.Load(),
		Delivered:    w.delivered.Load(),
		Failed:       w.failed.Load(),
		Dropped:      w.dropped.Load(),
		Requeued:     w.requeued.Load(),
		RetriesTotal: w.retriesTotal.Load(),
	}
}

// Close gracefully shuts down the notifier.
func (w *Webhook) Close(ctx context.Context) error {
	if w.closed.Swap(true) {
		return nil // already closed
	}

	w.logger.Info("Notifier shutting down", "queued", len(w.queue))
	close(w.shutdown)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Notifier shutdown complete",
			"delivered", w.delivered.Load(),
			"failed", w.failed.Load(),
			"dropped", w.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		w.logger.Warn("Notifier shutdown timed out", "remaining", len(w.queue))
		return ctx.Err()
	}
}

// reportQueueSize periodically reports the queue size metric.
func (w *Webhook) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.metrics.RecordNotifierQueueSize(context.Background(), int64(len(w.queue)))
		}
	}
}

// worker processes events from the queue.
func (w *Webhook) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.shutdown:
			// Drain remaining events before exiting
			w.drainQueue()
			return
		case ev := <-w.queue:
			w.deliver(ev)
		}
	}
}

// drainQueue delivers remaining events after shutdown signal.
func (w *Webhook) drainQueue() {
	for {
		select {
		case ev := <-w.queue:
			w.deliver(ev)
		default:
			return // queue empty
		}
	}
}

// deliver attempts to deliver an event with retry and circuit breaking.
func (w *Webhook) deliver(ev *event) {
	if !w.breaker.Allow() {
		w.requeue(ev)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := w.sendWithRetry(ctx, ev); err != nil {
		w.breaker.RecordFailure()
		w.failed.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifierFailed(ctx)
		}
		w.logger.Warn("Delivery failed", "destination", w.host, "type", ev.payload.Type, "error", err)
		return
	}

	w.breaker.RecordSuccess()
	w.delivered.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifierDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue puts an event back in the queue after a delay when the circuit
// is open, giving the destination time to recover.
func (w *Webhook) requeue(ev *event) {
	if ev.requeues >= defaultMaxRequeues {
		w.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifierDropped(context.Background())
		}
		w.logger.Warn("Event dropped, max requeues reached", "type", ev.payload.Type, "requeues", ev.requeues)
		return
	}

	ev.requeues++
	w.requeued.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifierRequeued(context.Background())
	}

	go func() {
		select {
		case <-w.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case w.queue <- ev:
		case <-w.shutdown:
		default:
			// Buffer full, drop
			w.dropped.Add(1)
			if w.metrics != nil {
				w.metrics.RecordNotifierDropped(context.Background())
			}
			w.logger.Warn("Event dropped on requeue, buffer full", "type", ev.payload.Type)
		}
	}()
}

func (w *Webhook) sendWithRetry(ctx context.Context, ev *event) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			w.retriesTotal.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		lastErr = w.sender.Send(ctx, w.config.URL, ev.payload, w.config.SigningKey)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// extractHost extracts the host from a URL for logging.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Verify Webhook implements Notifier
var _ Notifier = (*Webhook)(nil)
