package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/civicdesk/civicdesk/internal/dispatch/retry"
	"github.com/civicdesk/civicdesk/internal/logger"
	"github.com/civicdesk/civicdesk/internal/models"
)

const (
	defaultCountWorkers = 4
	defaultQueueSize    = 256
)

var errBreakerOpen = errors.New("circuit breaker is open")

// Sender delivers one event to one collaborator
type Sender interface {
	Send(ctx context.Context, event models.DispatchEvent) error
}

type Config struct {
	// Workers consuming the queue. Default is used if not set
	CountWorkers int

	// Queue capacity. When full, new events are dropped with a warning
	QueueSize int

	// Consecutive failures per target before the breaker opens
	BreakerThreshold int

	// How long an open breaker short-circuits sends before probing again
	BreakerCooldown time.Duration
}

type target struct {
	name    string
	sender  Sender
	breaker *Breaker
	policy  retry.Policy
}

type envelope struct {
	target *target
	event  models.DispatchEvent
}

// Dispatcher delivers side effect events to external collaborators with
// retry and a per-target circuit breaker
// Dispatch is fire and forget: callers observe "accepted for delivery" only
// and never a send outcome. Duplicate delivery is possible, ordering is not
// guaranteed; consumers must tolerate both
type Dispatcher struct {
	countWorkers int
	queue        chan envelope

	breakerThreshold int
	breakerCooldown  time.Duration

	mu      sync.RWMutex
	targets map[string]*target

	logger logger.Logger
}

func New(cfg Config, l logger.Logger) *Dispatcher {
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Dispatcher{
		countWorkers:     cfg.CountWorkers,
		queue:            make(chan envelope, cfg.QueueSize),
		breakerThreshold: cfg.BreakerThreshold,
		breakerCooldown:  cfg.BreakerCooldown,
		targets:          make(map[string]*target),
		logger:           l,
	}
}

// Register adds a named downstream target
// Each target gets its own breaker and retry policy
func (d *Dispatcher) Register(name string, sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.targets[name] = &target{
		name:    name,
		sender:  sender,
		breaker: NewBreaker(d.breakerThreshold, d.breakerCooldown),
		policy:  retry.DefaultTargetPolicy(name, d.logger),
	}
}

// RegisterHTTP adds a target reached by HTTP POST at baseURL
func (d *Dispatcher) RegisterHTTP(name string, baseURL string) {
	d.Register(name, NewClient(baseURL, d.logger.With("target", name)))
}

// Dispatch queues the event for asynchronous delivery and returns immediately
// A full queue or unknown target drops the event with a warning; nothing is
// ever propagated back to the caller
func (d *Dispatcher) Dispatch(targetName string, event models.DispatchEvent) {
	d.mu.RLock()
	t, ok := d.targets[targetName]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("Dropping event for unknown target", "target", targetName, "event_type", event.EventType)
		eventsDropped.WithLabelValues(targetName, "unknown_target").Inc()
		return
	}

	select {
	case d.queue <- envelope{target: t, event: event}:
		eventsQueued.WithLabelValues(targetName).Inc()
	default:
		d.logger.Warn("Dropping event, dispatch queue is full", "target", targetName, "event_type", event.EventType)
		eventsDropped.WithLabelValues(targetName, "queue_full").Inc()
	}
}

// Run starts the worker pool and consumes the queue until ctx is cancelled
// The returned channel closes when every worker has stopped. In-flight sends
// abandoned at shutdown are not retried; delivery is best effort only
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < d.countWorkers; i++ {
		wg.Add(1)
		go func() {
			d.worker(ctx)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		d.logger.Debug("Dispatcher stopped")
	}()

	return idleStopped
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-d.queue:
			if !ok {
				d.logger.Debug("Dispatcher worker stopped, queue closed")
				return
			}

			d.deliver(ctx, env)
		}
	}
}

// deliver runs one send through the target's breaker and retry policy
// Failure ends in the fallback: log at warn and move on, never surface it
func (d *Dispatcher) deliver(ctx context.Context, env envelope) {
	t := env.target

	// Drop before touching the retrier while the breaker holds: a short
	// circuit is not a send attempt and must not count as one
	if !t.breaker.Ready() {
		d.logger.Warn("Event dropped, breaker is open",
			"target", t.name, "event_type", env.event.EventType)
		eventsDropped.WithLabelValues(t.name, "breaker_open").Inc()
		return
	}

	wasOpen := t.breaker.State() == stateOpen.String()

	policy := t.policy
	policy.Retryable = func(err error) bool {
		return err != nil && !errors.Is(err, errBreakerOpen)
	}
	onAttempt := policy.OnAttempt
	policy.OnAttempt = func(attempt int, err error) {
		// Another worker won the half-open probe; nothing was sent
		if errors.Is(err, errBreakerOpen) {
			return
		}
		if onAttempt != nil {
			onAttempt(attempt, err)
		}
	}
	onExhaust := policy.OnExhaust
	policy.OnExhaust = func(err error) {
		if errors.Is(err, errBreakerOpen) {
			return
		}
		if onExhaust != nil {
			onExhaust(err)
		}
	}

	err := retry.Do(ctx, func() error {
		if !t.breaker.Allow() {
			return errBreakerOpen
		}

		sendErr := t.sender.Send(ctx, env.event)
		if sendErr != nil {
			t.breaker.Failure()
			return sendErr
		}

		t.breaker.Success()
		return nil
	}, policy)

	switch {
	case err == nil:
		eventsDelivered.WithLabelValues(t.name).Inc()

	case errors.Is(err, errBreakerOpen):
		d.logger.Warn("Event dropped, breaker is open",
			"target", t.name, "event_type", env.event.EventType)
		eventsDropped.WithLabelValues(t.name, "breaker_open").Inc()

	default:
		d.logger.Warn("Event dropped after exhausted retries",
			"target", t.name, "event_type", env.event.EventType, "error", err)
		eventsDropped.WithLabelValues(t.name, "retries_exhausted").Inc()
	}

	if !wasOpen && t.breaker.State() == stateOpen.String() {
		d.logger.Warn("Circuit breaker opened", "target", t.name)
		breakerOpens.WithLabelValues(t.name).Inc()
	}
}
