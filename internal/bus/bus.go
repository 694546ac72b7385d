package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Handler receives events whose type matches the subscription pattern.
// Handler errors are logged and never propagate out of Emit.
type Handler func(ctx context.Context, ev Event) error

// Next invokes the rest of the middleware chain.
type Next func(ctx context.Context, ev Event) (Event, error)

// Middleware wraps event dispatch. It may mutate the event, replace it,
// or short-circuit by not calling next.
type Middleware func(ctx context.Context, ev Event, next Next) (Event, error)

// Subscription identifies one registered handler so it can be removed.
// Handlers are funcs and not comparable, hence the token.
type Subscription struct {
	pattern string
	id      uint64
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Bus is a wildcard pub/sub event bus with a middleware pipeline.
// Patterns are an exact type string, "prefix:*", or "*".
//
// Emit runs middleware in registration order on entry and reverse order
// on exit, then fans matching handlers out concurrently and waits for
// all of them. Safe for concurrent use.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]handlerEntry
	middleware []Middleware
	nextID     uint64
	logger     *slog.Logger
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]handlerEntry),
		logger:   logger,
	}
}

// Subscribe registers a handler for a pattern and returns the token
// needed to unsubscribe it.
func (b *Bus) Subscribe(pattern string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{pattern: pattern, id: b.nextID}
	b.handlers[pattern] = append(b.handlers[pattern], handlerEntry{id: sub.id, fn: h})
	return sub
}

// Unsubscribe removes a previously registered handler. Unknown
// subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.pattern]
	for i, entry := range entries {
		if entry.id == sub.id {
			b.handlers[sub.pattern] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.pattern]) == 0 {
		delete(b.handlers, sub.pattern)
	}
}

// Use appends a middleware to the pipeline. Middlewares registered
// first run outermost.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Emit pushes an event through the middleware chain and then invokes
// every matching handler concurrently, returning once all complete.
// The (possibly middleware-modified) event is returned. Handler and
// middleware failures are logged, never raised.
func (b *Bus) Emit(ctx context.Context, ev Event) Event {
	b.mu.RLock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.RUnlock()

	// Fold middlewares in reverse over the terminal dispatcher so the
	// first registered runs outermost. Rebuilt per call to stay live
	// against Use/Subscribe.
	next := Next(func(ctx context.Context, ev Event) (Event, error) {
		b.dispatch(ctx, ev)
		return ev, nil
	})
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		inner := next
		next = func(ctx context.Context, ev Event) (Event, error) {
			return mw(ctx, ev, inner)
		}
	}

	out, err := next(ctx, ev)
	if err != nil {
		b.logger.Error("event middleware failed", "event_type", ev.Type, "error", err)
		return ev
	}
	return out
}

// EmitNowait schedules Emit on a fresh goroutine and returns
// immediately. Errors and panics are swallowed with a log.
func (b *Bus) EmitNowait(ev Event) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event emit panicked", "event_type", ev.Type, "panic", r)
			}
		}()
		b.Emit(context.Background(), ev)
	}()
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.RLock()
	var matched []Handler
	for pattern, entries := range b.handlers {
		if !matchPattern(pattern, ev.Type) {
			continue
		}
		for _, entry := range entries {
			matched = append(matched, entry.fn)
		}
	}
	b.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, h := range matched {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "event_type", ev.Type, "panic", r)
				}
			}()
			if err := h(ctx, ev); err != nil {
				b.logger.Error("event handler failed", "event_type", ev.Type, "error", err)
			}
		}(h)
	}
	wg.Wait()
}

// matchPattern reports whether an event type matches a subscription
// pattern: exact, "*", or "prefix:*".
func matchPattern(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(eventType, prefix)
	}
	return false
}
