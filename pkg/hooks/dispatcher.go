package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	clone "github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
)

// Registration binds a handler to an event, optionally marking its failures
// as fatal for the dispatch.
type Registration struct {
	Event   Event
	Handler Handler
	Fatal   bool
}

// Dispatcher runs hook handlers strictly sequentially in registration order.
// It is an explicitly constructed instance meant to be built once at startup
// and passed by reference; there is no package-level singleton. Reload swaps
// the handler table atomically under the write lock.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Event][]Registration

	timeout     time.Duration
	cache       *resultCache
	breakerOpts []BreakerOption

	breakerMu sync.Mutex
	breakers  map[string]*CircuitBreaker
}

type Option func(*Dispatcher)

// WithHandlerTimeout bounds each handler invocation.
func WithHandlerTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// WithBreakerOptions configures the per-(handler, event) circuit breakers.
func WithBreakerOptions(opts ...BreakerOption) Option {
	return func(dp *Dispatcher) { dp.breakerOpts = opts }
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[Event][]Registration),
		timeout:  30 * time.Second,
		cache:    newResultCache(),
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Register appends a handler for the event. Handlers run in registration
// order.
func (d *Dispatcher) Register(event Event, handler Handler) {
	d.RegisterFatal(event, handler, false)
}

// RegisterFatal appends a handler whose failure aborts the remaining chain
// for this event when fatal is true.
func (d *Dispatcher) RegisterFatal(event Event, handler Handler, fatal bool) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], Registration{Event: event, Handler: handler, Fatal: fatal})
}

// Reload atomically replaces the whole handler table and invalidates the
// result cache and breaker states.
func (d *Dispatcher) Reload(registrations []Registration) {
	table := make(map[Event][]Registration)
	for _, reg := range registrations {
		if reg.Handler == nil {
			continue
		}
		table[reg.Event] = append(table[reg.Event], reg)
	}

	d.mu.Lock()
	d.handlers = table
	d.mu.Unlock()

	d.cache.clear()

	d.breakerMu.Lock()
	d.breakers = make(map[string]*CircuitBreaker)
	d.breakerMu.Unlock()
}

// HandlerCount returns the number of handlers registered for an event.
func (d *Dispatcher) HandlerCount(event Event) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

func (d *Dispatcher) breaker(handlerID string, event Event) *CircuitBreaker {
	key := handlerID + "|" + string(event)
	d.breakerMu.Lock()
	defer d.breakerMu.Unlock()
	cb, ok := d.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(d.breakerOpts...)
		d.breakers[key] = cb
	}
	return cb
}

// Trigger runs the event's handlers sequentially. Each handler sees a deep
// copy of input and the output as rewritten by its predecessors; a non-nil
// return value replaces the output for the rest of the chain. A handler
// error or timeout is isolated to that handler unless it was registered
// fatal. The rewritten output is returned.
func (d *Dispatcher) Trigger(ctx context.Context, event Event, input any, output any) (any, error) {
	d.mu.RLock()
	regs := make([]Registration, len(d.handlers[event]))
	copy(regs, d.handlers[event])
	d.mu.RUnlock()

	if len(regs) == 0 {
		return output, nil
	}

	cacheable := cacheableEvents[event]
	var key string
	if cacheable {
		var ok bool
		if key, ok = cacheKey(event, input); ok {
			if cached, hit := d.cache.get(key); hit {
				d.record(ctx, event, "*", 0, "cached")
				return clone.Clone(cached), nil
			}
		} else {
			cacheable = false
		}
	}

	current := output
	for _, reg := range regs {
		handlerID := reg.Handler.ID()

		cb := d.breaker(handlerID, event)
		if !cb.Allow() {
			log.Debug().Str("handler", handlerID).Str("event", string(event)).Msg("hook short-circuited by open breaker")
			d.record(ctx, event, handlerID, 0, "short-circuited")
			continue
		}

		start := time.Now()
		ret, err := d.invoke(ctx, reg.Handler, event, clone.Clone(input), current)
		elapsed := time.Since(start)

		if err != nil {
			cb.RecordFailure()
			status := "error"
			if errors.Is(err, context.DeadlineExceeded) {
				status = "timeout"
			}
			d.record(ctx, event, handlerID, elapsed.Milliseconds(), status)
			log.Warn().Err(err).Str("handler", handlerID).Str("event", string(event)).Msg("hook handler failed")
			if reg.Fatal {
				return current, errors.Wrapf(err, "fatal hook handler %s failed for %s", handlerID, event)
			}
			continue
		}

		cb.RecordSuccess()
		d.record(ctx, event, handlerID, elapsed.Milliseconds(), "ok")
		if ret != nil {
			current = ret
		}
	}

	if cacheable {
		// store a copy so callers mutating the returned value cannot poison
		// later hits
		d.cache.put(key, clone.Clone(current))
	}

	return current, nil
}

// TriggerBlind dispatches a fire-and-forget event: the output rewrite chain
// is ignored and errors are only logged.
func (d *Dispatcher) TriggerBlind(ctx context.Context, event Event, input any) {
	if !fireAndForgetEvents[event] {
		log.Debug().Str("event", string(event)).Msg("TriggerBlind on an event with rewrite semantics")
	}
	if _, err := d.Trigger(ctx, event, input, nil); err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("fire-and-forget hook dispatch failed")
	}
}

// invoke runs one handler under the dispatcher timeout. On timeout the
// handler goroutine is abandoned; its context is cancelled so well-behaved
// handlers unwind.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, event Event, input, output any) (any, error) {
	hctx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	type result struct {
		ret any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: errors.Errorf("hook handler panicked: %v", r)}
			}
		}()
		ret, err := h.Handle(hctx, event, input, output)
		ch <- result{ret: ret, err: err}
	}()

	select {
	case res := <-ch:
		return res.ret, res.err
	case <-hctx.Done():
		return nil, hctx.Err()
	}
}

func (d *Dispatcher) record(ctx context.Context, event Event, handlerID string, durationMs int64, status string) {
	meta := events.EventMetadata{ID: uuid.New()}
	events.PublishEventToContext(ctx, events.NewHookRecordEvent(meta, string(event), handlerID, durationMs, status))
}
