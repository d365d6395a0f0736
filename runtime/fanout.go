package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pixel-chat/contract"
	"pixel-chat/domain/event"
)

var (
	_ contract.EventSink = (*EventFanout)(nil)
	_ contract.Worker    = (*EventFanout)(nil)
)

// EventFanout hands events over to slower sinks without blocking the producer.
//
// Events carry whole state (a full view, a full status), so only the latest
// event of each type is kept while sinks are busy. Intermediate states may be
// skipped, the final one never is.
type EventFanout struct {
	log         *slog.Logger
	sinkTimeout time.Duration
	sinks       []contract.EventSink

	mu      sync.Mutex
	pending map[event.Type]event.Event
	order   []event.Type
	wake    chan struct{}
}

func NewEventFanout(log *slog.Logger, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		sinkTimeout: sinkTimeout,
		pending:     make(map[event.Type]event.Event),
		wake:        make(chan struct{}, 1),
	}
}

// Add registers sinks. It must be called before Run.
func (f *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	f.sinks = append(f.sinks, sinks...)
	return f
}

// Consume never blocks.
func (f *EventFanout) Consume(_ context.Context, e event.Event) error {
	f.mu.Lock()
	if _, queued := f.pending[e.EventType()]; !queued {
		f.order = append(f.order, e.EventType())
	}
	f.pending[e.EventType()] = e
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.log.Debug("Context done, stopping event fan-out")
			return nil
		case <-f.wake:
			for _, e := range f.take() {
				f.Fanout(ctx, e)
			}
		}
	}
}

// Fanout delivers one event to every sink, each bounded by the sink timeout.
func (f *EventFanout) Fanout(ctx context.Context, e event.Event) {
	for _, sink := range f.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			f.log.Warn("Sink failed", "sink", sinkName(sink), "type", e.EventType(), "error", err)
		}
		cancel()
	}
}

func (f *EventFanout) take() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]event.Event, 0, len(f.order))
	for _, kind := range f.order {
		events = append(events, f.pending[kind])
	}
	f.pending = make(map[event.Type]event.Event)
	f.order = f.order[:0]
	return events
}

func sinkName(sink contract.EventSink) string {
	if worker, ok := sink.(contract.Worker); ok {
		return contract.GetWorkerName(worker)
	}
	return "sink"
}
