package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/internal/eventbus"
)

// DefaultTimeout bounds a single remote publish.
const DefaultTimeout = 4 * time.Second

// ErrClosed is returned by publishers used after Close.
var ErrClosed = errors.New("publisher closed")

// Publisher sends an encoded event to the external bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Notifier is what the planning core calls after a committed mutation.
type Notifier interface {
	Notify(ctx context.Context, name string, data any)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, any) {}

// Option configures a Fanout.
type Option func(*Fanout)

// WithTimeout sets the timeout of remote publishes.
func WithTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClock overrides the clock stamping events.
func WithClock(now func() time.Time) Option {
	return func(f *Fanout) { f.now = now }
}

// Fanout delivers events to the local bus synchronously and to the remote
// publisher asynchronously.
type Fanout struct {
	bus     *eventbus.Bus[Event]
	pub     Publisher
	log     logger.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
}

// NewFanout builds a Fanout. pub may be nil to keep events in process.
func NewFanout(bus *eventbus.Bus[Event], pub Publisher, log logger.Logger, opts ...Option) *Fanout {
	if bus == nil {
		bus = eventbus.New[Event](32)
	}
	if log == nil {
		log = logger.Nop{}
	}
	f := &Fanout{bus: bus, pub: pub, log: log, timeout: DefaultTimeout, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Notify publishes an event named name. It never blocks on the remote bus
// and never fails.
func (f *Fanout) Notify(ctx context.Context, name string, data any) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.log.Warnf("drop %s: fan-out closed", name)
		return
	}
	e := Event{ID: uuid.NewString(), Name: name, Data: data, Time: f.now().UTC()}
	f.bus.Publish(e.Kind(), e.Broadcast(), e)
	if f.pub == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		publishTotal.WithLabelValues("encode_error").Inc()
		f.log.Errorf("encode %s: %v", name, err)
		return
	}
	// The mutation already committed; the publish outlives the request.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()
		start := time.Now()
		err := f.pub.Publish(pctx, e.Topic(), payload)
		publishLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			publishTotal.WithLabelValues("failure").Inc()
			f.log.Errorf("publish %s to %s: %v", e.Name, e.Topic(), err)
			return
		}
		publishTotal.WithLabelValues("success").Inc()
		f.log.Debugw("event published", map[string]any{"event": e.Name, "id": e.ID, "topic": e.Topic()})
	}()
}

// Subscribe returns a channel receiving the events of the given kinds plus
// board-wide broadcasts. No kinds means every event.
func (f *Fanout) Subscribe(kinds ...string) <-chan Event {
	return f.bus.Subscribe(kinds...)
}

// Unsubscribe releases a channel returned by Subscribe.
func (f *Fanout) Unsubscribe(ch <-chan Event) {
	f.bus.Unsubscribe(ch)
}

// Wait blocks until in-flight remote publishes finish.
func (f *Fanout) Wait() {
	f.wg.Wait()
}

// Close waits for in-flight publishes, then closes the bus and the publisher.
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
	f.bus.Close()
	if f.pub != nil {
		return f.pub.Close()
	}
	return nil
}
