package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/haulboard/core/notify"
)

// Source is the subscription side of the notification fan-out.
type Source interface {
	Subscribe(kinds ...string) <-chan notify.Event
	Unsubscribe(ch <-chan notify.Event)
}

// EventSink counts board events by name.
type EventSink struct {
	events *prometheus.CounterVec
	last   *prometheus.GaugeVec
}

// NewEventSink registers the event collectors on reg. A nil registerer
// defaults to the global Prometheus registerer.
func NewEventSink(reg prometheus.Registerer) (*EventSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_events_total",
		Help: "Board events delivered on the in-process bus",
	}, []string{"event"})
	last := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "board_event_last_timestamp_seconds",
		Help: "Unix time of the last event of each kind",
	}, []string{"kind"})

	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		events = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(last); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		last = are.ExistingCollector.(*prometheus.GaugeVec)
	}
	return &EventSink{events: events, last: last}, nil
}

// Record accounts for one event.
func (s *EventSink) Record(e notify.Event) {
	s.events.WithLabelValues(e.Name).Inc()
	s.last.WithLabelValues(e.Kind()).Set(float64(e.Time.Unix()))
}

// StartEventCollector subscribes to every event of src and records it in
// sink until ctx is canceled or the source closes.
func StartEventCollector(ctx context.Context, src Source, sink *EventSink) {
	if src == nil || sink == nil {
		return
	}
	sub := src.Subscribe()
	go func() {
		defer src.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				sink.Record(e)
			}
		}
	}()
}
