// Package event provides the in-process event bus connecting the history
// engine to the viewer.
//
// Events are typed with generics and published on hierarchical topics:
//
//	bus := event.NewBus()
//	bus.SubscribeFunc("history.*", func(ctx context.Context, ev any) error {
//	    if st, ok := event.PayloadOf[events.HistoryChanged](ev); ok {
//	        updateButtons(st)
//	    }
//	    return nil
//	})
//	bus.Publish(ctx, event.NewEvent(events.TopicHistoryChanged, st, "history"))
//
// Patterns may use "*" for one segment and "**" for any number of
// segments. Delivery is synchronous in the publisher's goroutine, ordered
// by priority and then by subscription order. Handler errors and panics
// never stop delivery to other handlers.
package event
