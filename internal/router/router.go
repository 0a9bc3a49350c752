// Package router dispatches parsed events to their handler chains.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/internal/event"
)

// Result is a handler's declared outcome. A handler that could not do its
// job for a reason it understands returns Failure; an error return is kept
// for collaborators that misbehaved.
type Result struct {
	ok     bool
	reason string
}

func Success() Result { return Result{ok: true} }

func Failure(reason string) Result { return Result{reason: reason} }

func (r Result) OK() bool       { return r.ok }
func (r Result) Reason() string { return r.reason }

type HandlerFunc func(ctx context.Context, env event.Envelope) (Result, error)

// Handler is one named step in a chain.
type Handler struct {
	Name string
	Fn   HandlerFunc
}

type OutcomeKind string

const (
	Handled         OutcomeKind = "handled"
	HandlerFailed   OutcomeKind = "handler_failed"
	UnexpectedError OutcomeKind = "unexpected_error"
)

// Outcome says what happened to one event. Only Handled means the message
// may be acknowledged.
type Outcome struct {
	Kind OutcomeKind
	// Handler names the step that failed. Empty when Kind is Handled.
	Handler string
	Detail  string
	Err     error
}

func (o Outcome) Acknowledge() bool { return o.Kind == Handled }

// Routes maps each event type to its ordered handler chain.
type Routes map[event.Type][]Handler

// Router is immutable after New.
type Router struct {
	routes Routes
}

// New copies routes into a router. It rejects handlers without a name or
// function and event types outside the known set.
func New(routes Routes) (*Router, error) {
	copied := make(Routes, len(routes))
	for t, chain := range routes {
		if !t.Valid() {
			return nil, fmt.Errorf("route for unknown event type %q", t)
		}
		for i, h := range chain {
			if h.Name == "" || h.Fn == nil {
				return nil, fmt.Errorf("route %s: handler %d needs a name and a function", t, i)
			}
		}
		copied[t] = slices.Clone(chain)
	}
	return &Router{routes: copied}, nil
}

// Chain returns the handler names registered for t, in order.
func (r *Router) Chain(t event.Type) []string {
	chain := r.routes[t]
	names := make([]string, len(chain))
	for i, h := range chain {
		names[i] = h.Name
	}
	return names
}

// Types returns the event types with a registered chain, sorted.
func (r *Router) Types() []event.Type {
	return slices.Sorted(maps.Keys(r.routes))
}

// Route runs the chain for env.Type() in order and stops at the first
// handler that does not succeed. An event type with no chain is Handled.
// Panics are not recovered here.
func (r *Router) Route(ctx context.Context, env event.Envelope) Outcome {
	chain := r.routes[env.Type()]
	if len(chain) == 0 {
		slog.DebugContext(ctx, "no handlers registered, acknowledging", "event_type", env.Type())
		return Outcome{Kind: Handled}
	}

	for _, h := range chain {
		hctx := logger.WithLogFields(ctx, logger.LogFields{Handler: logger.Ptr(h.Name)})

		res, err := h.Fn(hctx, env)
		if err != nil {
			return Outcome{
				Kind:    UnexpectedError,
				Handler: h.Name,
				Detail:  err.Error(),
				Err:     err,
			}
		}
		if !res.OK() {
			return Outcome{
				Kind:    HandlerFailed,
				Handler: h.Name,
				Detail:  res.Reason(),
			}
		}
		slog.DebugContext(hctx, "handler succeeded")
	}
	return Outcome{Kind: Handled}
}
