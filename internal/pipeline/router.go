package pipeline

import (
	"context"
	"fmt"

	"zapfilter/internal/core/envelope"
	"zapfilter/internal/store"
	"zapfilter/platform/logger"
)

// Handler processes one event kind.
type Handler func(ctx context.Context, env envelope.Envelope) Result

// Result is the terminal outcome of routing one event. Handlers never
// return Go errors upward; failures are carried here.
type Result struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router owns the kind→handler dispatch table and the intake loop.
// Every event is counted; kinds without a dedicated handler are
// counted and logged generically.
type Router struct {
	handlers map[string]Handler
	stats    *store.Stats
	logger   *logger.Logger
}

// NewRouter creates an empty router.
func NewRouter(stats *store.Stats, log *logger.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		stats:    stats,
		logger:   log.WithModule("event-router"),
	}
}

// Register binds a handler to an event kind. Later registrations win.
func (r *Router) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Route dispatches one envelope. Handler panics become failed results
// instead of taking the intake loop down.
func (r *Router) Route(ctx context.Context, env envelope.Envelope) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorWithFields("Handler panicked", map[string]interface{}{
				"event": env.Event,
				"panic": fmt.Sprintf("%v", p),
			})
			result = Result{Success: false, Action: store.ActionFailed, Error: fmt.Sprintf("handler panic: %v", p)}
		}
	}()

	r.stats.Increment(env.Event, store.FieldTotal)

	if h, ok := r.handlers[env.Event]; ok {
		return h(ctx, env)
	}
	return r.generic(env)
}

// generic handles kinds without a dedicated handler.
func (r *Router) generic(env envelope.Envelope) Result {
	r.logger.DebugWithFields("Event logged", map[string]interface{}{
		"event":  env.Event,
		"source": env.Source,
	})
	r.stats.LogEvent(store.EventRecord{
		Event:  env.Event,
		Action: store.ActionLogged,
	})
	return Result{Success: true, Action: store.ActionLogged}
}

// Run consumes envelopes until the channel closes or the context
// ends. The producing adapter owns the channel.
func (r *Router) Run(ctx context.Context, events <-chan envelope.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				r.logger.Info("Event channel closed, router stopping")
				return
			}
			if result := r.Route(ctx, env); !result.Success {
				r.logger.WarnWithFields("Event handling failed", map[string]interface{}{
					"event": env.Event,
					"error": result.Error,
				})
			}
		}
	}
}
