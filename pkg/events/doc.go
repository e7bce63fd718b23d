// Package events records pipeline events and delivers them to handlers.
//
// The emitter writes the event row inside the transaction that changed the
// stage. Once that transaction commits, the event is handed to a Dispatcher:
// the Registry itself (synchronous) or an AsyncDispatcher wrapping it.
//
//	registry := events.NewRegistry(logger, metrics)
//	registry.Register(events.EventTypeStageChanged, "log", events.LogPipelineChange(store, logger))
//	registry.Register(events.EventTypeStageChanged, "redis", publisher.Handle)
//	dispatcher := events.NewAsyncDispatcher(registry, 10*time.Second)
//
// Handlers run concurrently. A handler error or panic is logged and counted
// in sunup_event_handler_failures_total; it never reaches the caller.
package events
