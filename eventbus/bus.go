package eventbus

import (
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Event you can subscribe to
type Event struct {
	Name string
	At   time.Time
	Args interface{}
}

// EventHandler deals with handling events
type EventHandler interface {
	On(Event) error
}

// EventPredicate for filtering events
type EventPredicate func(Event) bool

// NOOPHandler drops events on the floor without taking action
var NOOPHandler = Handler(func(_ Event) error { return nil })

// Handler wraps a function that will be called when an event is received.
// Errors returned by the function are passed to the error handler of the bus,
// which logs them by default.
func Handler(on func(Event) error) EventHandler {
	return &funcHandler{on: on}
}

type funcHandler struct {
	on func(Event) error
}

func (h *funcHandler) On(event Event) error {
	return h.on(event)
}

type filteredHandler struct {
	next    EventHandler
	matches EventPredicate
}

func (f *filteredHandler) On(evt Event) error {
	if !f.matches(evt) {
		return nil
	}
	return f.next.On(evt)
}

// Filtered composes an event handler with a filter
func Filtered(matches EventPredicate, next EventHandler) EventHandler {
	return &filteredHandler{matches: matches, next: next}
}

// EventBus fans out events to the registered handlers.
// Every handler sees the events in the order they were published.
type EventBus interface {
	Close() error
	Publish(Event)
	Subscribe(...EventHandler)
	Unsubscribe(...EventHandler)
	Len() int
}

// NopBus discards every event
var NopBus EventBus = &nopBus{}

type nopBus struct{}

func (n *nopBus) Close() error                { return nil }
func (n *nopBus) Publish(Event)               {}
func (n *nopBus) Subscribe(...EventHandler)   {}
func (n *nopBus) Unsubscribe(...EventHandler) {}
func (n *nopBus) Len() int                    { return 0 }

// Option configures a bus
type Option func(*bus)

// Timeout is how long a publish waits on a slow handler before dropping the event for it
func Timeout(d time.Duration) Option {
	return func(b *bus) { b.timeout = d }
}

// Buffer sets the queue size per subscriber
func Buffer(size int) Option {
	return func(b *bus) { b.buffer = size }
}

// OnError replaces the default error handler, which logs handler errors
func OnError(fn func(error)) Option {
	return func(b *bus) { b.onError = fn }
}

// Metrics uses the provided registry instead of metrics.DefaultRegistry
func Metrics(registry metrics.Registry) Option {
	return func(b *bus) { b.registry = registry }
}

// New event bus with specified logger
func New(log logrus.FieldLogger, opts ...Option) EventBus {
	if log == nil {
		log = logrus.New().WithFields(nil)
	}
	b := &bus{
		log:      log,
		timeout:  100 * time.Millisecond,
		buffer:   100,
		registry: metrics.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.onError == nil {
		b.onError = func(err error) { b.log.Errorln(err) }
	}
	b.notify = metrics.GetOrRegisterTimer("eventbus.notify", b.registry)
	b.dropped = metrics.GetOrRegisterCounter("eventbus.dropped", b.registry)
	return b
}

// NewWithTimeout creates a new eventbus that gives up on a handler after the timeout
func NewWithTimeout(log logrus.FieldLogger, timeout time.Duration) EventBus {
	return New(log, Timeout(timeout))
}

type bus struct {
	lock     sync.RWMutex
	subs     []*subscription
	closed   bool
	wg       sync.WaitGroup
	log      logrus.FieldLogger
	timeout  time.Duration
	buffer   int
	onError  func(error)
	registry metrics.Registry
	notify   metrics.Timer
	dropped  metrics.Counter
}

type subscription struct {
	handler EventHandler
	queue   chan Event
}

func (b *bus) listen(sub *subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for evt := range sub.queue {
			var err error
			b.notify.Time(func() { err = sub.handler.On(evt) })
			if err != nil {
				b.onError(err)
			}
		}
	}()
}

// Publish an event to all interested subscribers
func (b *bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	if b.closed {
		b.log.Debugf("bus is closed, dropping event %q", evt.Name)
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.queue <- evt:
			continue
		default:
		}
		timer := time.NewTimer(b.timeout)
		select {
		case sub.queue <- evt:
			timer.Stop()
		case <-timer.C:
			b.dropped.Inc(1)
			b.log.Warnf("failed to send event %q to listener within %v", evt.Name, b.timeout)
		}
	}
}

// Subscribe to events published in the bus
func (b *bus) Subscribe(handlers ...EventHandler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	b.log.Debugf("adding %d listeners", len(handlers))
	for _, handler := range handlers {
		sub := &subscription{handler: handler, queue: make(chan Event, b.buffer)}
		b.subs = append(b.subs, sub)
		b.listen(sub)
	}
}

// Unsubscribe removes one registration for each of the handlers.
// Events already queued for the handler are still delivered.
func (b *bus) Unsubscribe(handlers ...EventHandler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.log.Debugf("removing %d listeners", len(handlers))
	for _, h := range handlers {
		for i, sub := range b.subs {
			if sub.handler == h {
				close(sub.queue)
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Close the bus, it waits until every handler drained its queue
func (b *bus) Close() error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.queue)
	}
	b.subs = nil
	b.lock.Unlock()

	b.wg.Wait()
	b.log.Debug("event bus closed")
	return nil
}

func (b *bus) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.subs)
}
