package app

import (
	"context"

	"github.com/dshills/revview/internal/event"
	"github.com/dshills/revview/internal/event/events"
	"github.com/dshills/revview/internal/event/topic"
	"github.com/dshills/revview/internal/history"
	"github.com/dshills/revview/internal/logging"
	"github.com/dshills/revview/internal/viewer"
)

// Compile-time interface checks.
var (
	_ history.Observer   = (*HistoryPublisher)(nil)
	_ history.StatusSink = (*StatusPublisher)(nil)
	_ history.Recorder   = (*Metrics)(nil)
	_ viewer.Publisher   = (*event.Bus)(nil)
)

const eventSource = "history"

// HistoryPublisher adapts the event bus to history.Observer.
type HistoryPublisher struct {
	bus    *event.Bus
	logger *logging.Logger
}

// NewHistoryPublisher creates an observer publishing on bus.
func NewHistoryPublisher(bus *event.Bus, logger *logging.Logger) *HistoryPublisher {
	if logger == nil {
		logger = logging.Null()
	}
	return &HistoryPublisher{bus: bus, logger: logger}
}

// OnHistoryChanged publishes s as events.HistoryChanged.
func (p *HistoryPublisher) OnHistoryChanged(s history.State) {
	ev := event.NewEvent(events.TopicHistoryChanged, events.HistoryChanged{
		Enabled:   s.Enabled,
		UndoEmpty: s.UndoEmpty,
		RedoEmpty: s.RedoEmpty,
		UndoLabel: s.UndoLabel,
		RedoLabel: s.RedoLabel,
		UndoDepth: s.UndoDepth,
		RedoDepth: s.RedoDepth,
	}, eventSource)
	if err := p.bus.Publish(context.Background(), ev); err != nil {
		p.logger.Debug("publish %s: %v", events.TopicHistoryChanged, err)
	}
}

// StatusPublisher adapts the event bus to history.StatusSink.
// Failures are also logged at warn level.
type StatusPublisher struct {
	bus    *event.Bus
	logger *logging.Logger
}

// NewStatusPublisher creates a sink publishing on bus.
func NewStatusPublisher(bus *event.Bus, logger *logging.Logger) *StatusPublisher {
	if logger == nil {
		logger = logging.Null()
	}
	return &StatusPublisher{bus: bus, logger: logger}
}

// Report publishes msg.
func (p *StatusPublisher) Report(msg string) {
	p.logger.Debug("%s", msg)
	p.publish(events.HistoryStatus{Message: msg})
}

// ReportError publishes err.
func (p *StatusPublisher) ReportError(err error) {
	if err == nil {
		return
	}
	p.logger.Warn("%v", err)
	p.publish(events.HistoryStatus{Message: err.Error(), Err: err})
}

func (p *StatusPublisher) publish(s events.HistoryStatus) {
	ev := event.NewEvent(events.TopicHistoryStatus, s, eventSource)
	if err := p.bus.Publish(context.Background(), ev); err != nil {
		p.logger.Debug("publish %s: %v", events.TopicHistoryStatus, err)
	}
}

// subscriptions holds the bus subscriptions that keep the view and the
// metrics in step with history and document events.
type subscriptions struct {
	bus  *event.Bus
	subs []*event.Subscription
}

// subscribe registers fn for events of payload type T on pattern.
func subscribe[T any](s *subscriptions, pattern topic.Topic, p event.Priority, fn func(T)) error {
	sub, err := s.bus.SubscribeFunc(pattern, func(_ context.Context, ev any) error {
		if payload, ok := event.PayloadOf[T](ev); ok {
			fn(payload)
		}
		return nil
	}, event.WithPriority(p))
	if err != nil {
		return NewOperationError("subscribe", pattern.String(), err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// wireSubscriptions connects history and document events to view and metrics.
// Either may be nil. The view is updated before other handlers run and
// metrics after them.
func wireSubscriptions(bus *event.Bus, view *viewer.View, metrics *Metrics) (*subscriptions, error) {
	s := &subscriptions{bus: bus}

	if view != nil {
		if err := subscribe(s, events.TopicHistoryChanged, event.PriorityHigh, func(c events.HistoryChanged) {
			view.SetHistory(history.State{
				Enabled:   c.Enabled,
				UndoEmpty: c.UndoEmpty,
				RedoEmpty: c.RedoEmpty,
				UndoLabel: c.UndoLabel,
				RedoLabel: c.RedoLabel,
				UndoDepth: c.UndoDepth,
				RedoDepth: c.RedoDepth,
			})
		}); err != nil {
			return nil, err
		}
		if err := subscribe(s, events.TopicHistoryStatus, event.PriorityHigh, func(st events.HistoryStatus) {
			view.SetStatus(st.Message, st.IsError())
		}); err != nil {
			return nil, err
		}
	}

	if metrics != nil {
		if err := subscribe(s, events.TopicDocumentEdited, event.PriorityLow, func(e events.DocumentEdited) {
			metrics.Edited(e.Edit)
		}); err != nil {
			return nil, err
		}
		if err := subscribe(s, events.TopicDocumentRetired, event.PriorityLow, func(events.DocumentRetired) {
			metrics.Reloaded()
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// close removes every subscription.
func (s *subscriptions) close() {
	for _, sub := range s.subs {
		_ = s.bus.Unsubscribe(sub)
	}
	s.subs = nil
}
