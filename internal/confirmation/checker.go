package confirmation

import (
	"context"
	"steamcommunity/internal/components/assert"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var meter = otel.Meter("steamcommunity.internal.confirmation")

var pollCounter, _ = meter.Int64Counter(
	"confirmation.checker.polls",
	metric.WithDescription("Polls of the confirmation list made by the checker."),
)
var discoveredCounter, _ = meter.Int64Counter(
	"confirmation.checker.discovered",
	metric.WithDescription("Confirmations the checker saw for the first time."),
)
var acceptedCounter, _ = meter.Int64Counter(
	"confirmation.checker.accepted",
	metric.WithDescription("Confirmations accepted automatically by the checker."),
)

type queued struct {
	gen          uint64
	confirmation Confirmation
}

// checker is the polling state of a Manager. Every start and stop bumps
// generation, timers and queued items of an older generation are ignored.
type checker struct {
	mu         sync.Mutex
	running    bool
	generation uint64
	interval   time.Duration
	secret     string
	known      map[string]struct{}
	queue      []queued
	timer      *time.Timer
	wake       chan struct{}
	stop       chan struct{}

	// pollMu is held for a whole poll, polls never overlap.
	pollMu sync.Mutex
}

func (c *checker) identitySecret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secret
}

func (c *checker) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.generation == gen
}

func (c *checker) next(gen uint64) (queued, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || len(c.queue) == 0 {
		return queued{}, false
	}
	item := c.queue[0]
	c.queue = c.queue[1:]
	return item, true
}

func (c *checker) forget(id string) {
	c.mu.Lock()
	delete(c.known, id)
	c.mu.Unlock()
}

// halt must be called with mu held.
func (c *checker) halt() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.queue = nil
}

// StartChecker polls the confirmation list every interval, the first poll
// happening after Options.InitialDelay. With an identity secret every new
// confirmation is accepted and announced as ConfirmationAccepted, without one
// it is announced as NewConfirmation. Starting a running checker restarts it
// with the new settings.
func (m *Manager) StartChecker(interval time.Duration, identitySecret string) {
	assert.Positive(interval, "checker interval")
	c := &m.checker

	c.mu.Lock()
	c.halt()
	gen := c.generation
	c.running = true
	c.interval = interval
	c.secret = identitySecret
	if c.known == nil {
		c.known = map[string]struct{}{}
	}
	c.wake = make(chan struct{}, 1)
	c.stop = make(chan struct{})
	go m.work(gen, c.stop, c.wake)
	c.timer = time.AfterFunc(m.opts.InitialDelay, func() {
		m.poll(gen)
	})
	c.mu.Unlock()

	m.debug("confirmation checker started, interval %s, auto accept %t", interval, identitySecret != "")
}

// StopChecker cancels future polls and drops queued confirmations. A poll in
// flight completes but its result is discarded.
func (m *Manager) StopChecker() {
	c := &m.checker

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.halt()
	c.known = nil
	c.secret = ""
	c.mu.Unlock()

	m.keys.Purge()
	m.debug("confirmation checker stopped")
}

// CheckNow polls immediately instead of waiting for the next tick and returns
// once the poll completed. It does nothing when the checker is not running.
func (m *Manager) CheckNow() {
	c := &m.checker

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	m.poll(gen)
}

func (m *Manager) poll(gen uint64) {
	c := &m.checker
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if !c.current(gen) {
		return
	}
	m.pollOnce(gen)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.generation != gen {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.interval, func() {
		m.poll(gen)
	})
}

func (m *Manager) pollOnce(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PollTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "checker:poll")
	defer span.End()

	pollCounter.Add(ctx, 1)

	key, err := m.GetKey(ctx, TagConf)
	if err != nil {
		m.checkerFailed(span, "cannot get confirmation key", err)
		return
	}
	confirmations, err := m.List(ctx, key.Time, key.Key)
	if err != nil {
		m.checkerFailed(span, "cannot load confirmations", err)
		return
	}

	c := &m.checker
	c.mu.Lock()
	if !c.running || c.generation != gen {
		c.mu.Unlock()
		m.debug("discarding confirmations of a stopped checker")
		return
	}
	listed := make(map[string]struct{}, len(confirmations))
	fresh := 0
	for _, conf := range confirmations {
		listed[conf.ID] = struct{}{}
		if _, ok := c.known[conf.ID]; ok {
			continue
		}
		// a listing fetched while the worker accepted it can still show it
		if m.handled.Contains(conf.ID) {
			continue
		}
		c.known[conf.ID] = struct{}{}
		c.queue = append(c.queue, queued{gen: gen, confirmation: conf})
		fresh++
	}
	for id := range c.known {
		if _, ok := listed[id]; !ok {
			delete(c.known, id)
		}
	}
	wake := c.wake
	c.mu.Unlock()

	if fresh == 0 {
		return
	}
	discoveredCounter.Add(ctx, int64(fresh))
	m.tel.ReportCount(report_checker_discovered, int64(fresh))
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (m *Manager) checkerFailed(span trace.Span, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.tel.ReportWarning(report_checker_poll, msg, err)
	m.debug("%s: %v", msg, err)
}

// work handles queued confirmations one at a time, waiting Options.Cooldown
// after each one.
func (m *Manager) work(gen uint64, stop <-chan struct{}, wake <-chan struct{}) {
	for {
		item, ok := m.checker.next(gen)
		if !ok {
			select {
			case <-stop:
				return
			case <-wake:
				continue
			}
		}

		m.process(item)

		select {
		case <-stop:
			return
		case <-time.After(m.opts.Cooldown):
		}
	}
}

func (m *Manager) process(item queued) {
	c := &m.checker
	conf := item.confirmation

	if c.identitySecret() == "" {
		if c.current(item.gen) {
			m.Events.NewConfirmation.Publish(NewConfirmationEvent{Confirmation: conf})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PollTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "checker:accept")
	defer span.End()

	key, err := m.GetKey(ctx, TagAllow)
	if err == nil {
		err = m.Respond(ctx, []string{conf.ID}, []string{conf.Key}, key.Time, key.Key, true)
	}
	if err == nil {
		m.handled.Add(conf.ID, struct{}{})
	}
	// a failed accept is retried when the next poll still lists it
	c.forget(conf.ID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.tel.ReportWarning(report_checker_process, conf.ID, err)
		m.debug("cannot accept confirmation %s: %v", conf.ID, err)
		return
	}
	if !c.current(item.gen) {
		return
	}
	acceptedCounter.Add(ctx, 1)
	m.Events.ConfirmationAccepted.Publish(ConfirmationAcceptedEvent{Confirmation: conf})
}
