package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"primos/internal/types"
)

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Route reports which level of the dispatch table handled an event.
type Route string

const (
	// RouteSpecific means an exact-type handler ran.
	RouteSpecific Route = "specific"
	// RouteFamily means the type matched a family without an exact handler.
	RouteFamily Route = "family"
	// RouteUnhandled means no handler matched; the event was only logged.
	RouteUnhandled Route = "unhandled"
)

// Family groups the handlers for one event-type prefix, e.g. "charge" for
// "charge.succeeded" and "charge.dispute.created".
type Family struct {
	Name     string
	Handlers map[string]HandlerFunc
	// Fallback runs for types in the family with no exact handler. When nil
	// the router logs the event as unhandled for the family.
	Fallback HandlerFunc
}

// Router dispatches events to handlers in two steps: family by prefix, then
// exact type. The table is fixed at construction.
type Router struct {
	families []Family
	logger   *slog.Logger
}

// NewRouter builds a router over families. Families are matched in order, so
// a longer prefix must be listed before a shorter one it overlaps.
func NewRouter(logger *slog.Logger, families ...Family) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	table := make([]Family, 0, len(families))
	for _, f := range families {
		handlers := make(map[string]HandlerFunc, len(f.Handlers))
		for t, h := range f.Handlers {
			handlers[t] = h
		}
		table = append(table, Family{Name: f.Name, Handlers: handlers, Fallback: f.Fallback})
	}
	return &Router{families: table, logger: logger}
}

// Dispatch runs exactly one handler level for ev and reports which one.
// Handler errors are wrapped with the event type.
func (r *Router) Dispatch(ctx context.Context, ev Event) (Route, error) {
	log := types.LoggerFromContext(ctx, r.logger).With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
	)

	family, ok := r.lookupFamily(ev.Type)
	if !ok {
		log.Info("unhandled event type")
		return RouteUnhandled, nil
	}

	if h, ok := family.Handlers[ev.Type]; ok {
		if err := h(ctx, ev); err != nil {
			return RouteSpecific, fmt.Errorf("handle %s: %w", ev.Type, err)
		}
		return RouteSpecific, nil
	}

	if family.Fallback == nil {
		log.Info("unhandled "+family.Name+" event", slog.String("family", family.Name))
		return RouteFamily, nil
	}
	if err := family.Fallback(ctx, ev); err != nil {
		return RouteFamily, fmt.Errorf("handle %s: %w", ev.Type, err)
	}
	return RouteFamily, nil
}

func (r *Router) lookupFamily(eventType string) (Family, bool) {
	for _, f := range r.families {
		if strings.HasPrefix(eventType, f.Name+".") {
			return f, true
		}
	}
	return Family{}, false
}
