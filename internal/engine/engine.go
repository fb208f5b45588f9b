package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
	"github.com/roach88/dirsync/internal/store"
)

// DefaultMaxSteps is the default maximum number of events one session may
// dispatch. This prevents runaway cascades from consuming unbounded resources.
const DefaultMaxSteps = 1000

// Consumer reacts to item change events.
//
// Consumers are called in registration order for every event. A consumer
// must be idempotent under redelivery and must claim the item in the
// session's processed set before writing anything.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, sess *session.Session, ev model.Event) error
}

// Engine is the single-writer event dispatcher.
//
// Events reach the engine two ways: host deliveries go through Enqueue and
// the Run loop; writes made inside Submit are buffered on the session and
// dispatched when the submitted func returns. Both paths take the writer
// lock, so at most one session mutates the catalog at a time.
//
// Thread-safety model:
//   - Enqueue(), Submit(), NewSession(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - consumers slice order NEVER changes after construction
//   - an event id is dispatched at most once (events table PK)
//   - every session is ended after its last event, clearing processed sets
type Engine struct {
	store     *store.Store
	consumers []Consumer
	queue     *eventQueue
	sessions  TokenGenerator
	tracer    trace.Tracer
	maxSteps  int

	writer sync.Mutex
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the maximum events dispatched per session.
//
// Default: 1000 steps (DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithTracer sets the tracer used for per-consumer spans.
// Default: a no-op tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an Engine.
//
// The consumers slice is copied to keep the registration order stable.
func New(s *store.Store, consumers []Consumer, sessions TokenGenerator, opts ...EngineOption) *Engine {
	var consumersCopy []Consumer
	if consumers != nil {
		consumersCopy = make([]Consumer, len(consumers))
		copy(consumersCopy, consumers)
	}

	e := &Engine{
		store:     s,
		consumers: consumersCopy,
		queue:     newEventQueue(),
		sessions:  sessions,
		tracer:    noop.NewTracerProvider().Tracer("noop"),
		maxSteps:  DefaultMaxSteps,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// MaxSteps returns the per-session event limit.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// Consumers returns the registered consumer names in dispatch order.
func (e *Engine) Consumers() []string {
	names := make([]string, 0, len(e.consumers))
	for _, c := range e.consumers {
		names = append(names, c.Name())
	}
	return names
}

// NewSession creates a session for actor with a fresh id.
func (e *Engine) NewSession(actor session.Actor) *session.Session {
	return session.New(e.sessions.Generate(), actor)
}

// Enqueue submits a host change event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev model.Event) bool {
	return e.queue.Enqueue(ev)
}

// Submit runs fn in a new session for actor, then dispatches every event
// fn buffered. The session id is returned even on error so callers can look
// up its provenance.
func (e *Engine) Submit(ctx context.Context, actor session.Actor, fn func(ctx context.Context, sess *session.Session) error) (string, error) {
	e.writer.Lock()
	defer e.writer.Unlock()

	sess := e.NewSession(actor)
	fnErr := fn(ctx, sess)
	if fnErr != nil {
		slog.Warn("submitted operation failed",
			"session", sess.ID,
			"actor", actor.ID,
			"pending_events", sess.Pending(),
			"error", fnErr,
		)
	}
	return sess.ID, errors.Join(fnErr, e.dispatch(ctx, sess))
}

// Run starts the event loop for host deliveries.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On dispatch failure, the error is logged with full
// event context and processing continues. The event stays in the log and
// Recover can re-deliver it if it was never marked dispatched.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "consumers", e.Consumers())

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, ev); err != nil {
				logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Deliver dispatches a single host event synchronously in a system session.
// It is the synchronous counterpart of Enqueue, used by the CLI and tests.
func (e *Engine) Deliver(ctx context.Context, ev model.Event) error {
	return e.processEvent(ctx, ev)
}

// processEvent dispatches one host event in its own system session.
func (e *Engine) processEvent(ctx context.Context, ev model.Event) error {
	e.writer.Lock()
	defer e.writer.Unlock()

	sess := session.System(e.sessions.Generate())
	sess.Emit(ev)
	return e.dispatch(ctx, sess)
}

// Recover re-delivers logged events that were never marked dispatched,
// for example after a crash between logging and consuming.
// Returns the number of events re-delivered.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	e.writer.Lock()
	defer e.writer.Unlock()

	pending, err := e.store.UndispatchedEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}

	var errs []error
	for _, le := range pending {
		sess := session.System(e.sessions.Generate())
		slog.Info("re-delivering event",
			"event_id", le.ID,
			"item", le.Event.ItemID,
			"kind", le.Event.Kind,
			"original_session", le.SessionID,
			"session", sess.ID,
		)
		errs = append(errs, e.deliver(ctx, sess, le.ID, le.Event)...)
		errs = append(errs, e.dispatch(ctx, sess))
	}
	return len(pending), errors.Join(errs...)
}

// dispatch drains the session's buffered events until none remain, then
// ends the session. Events emitted by consumers while handling an event
// are appended to the buffer and handled in the same session, so the
// processed sets stop a consumer from re-entering an item it already
// handled.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session) error {
	defer sess.End()

	quota := NewQuotaEnforcer(e.maxSteps)
	var errs []error

	for sess.Pending() > 0 {
		for _, ev := range sess.Drain() {
			if err := quota.Check(sess.ID); err != nil {
				slog.Error("max steps quota exceeded",
					"session", sess.ID,
					"item", ev.ItemID,
					"steps", quota.Current(),
					"limit", e.maxSteps,
					"event", "quota_exceeded",
				)
				errs = append(errs, err)
				return errors.Join(errs...)
			}

			id, inserted, err := e.store.WriteEvent(ctx, sess.ID, ev)
			if err != nil {
				errs = append(errs, NewStoreError(sess.ID, ev, err))
				continue
			}
			if !inserted {
				slog.Debug("event already logged, skipping",
					"event_id", id,
					"item", ev.ItemID,
					"kind", ev.Kind,
					"version", ev.Version,
				)
				continue
			}

			errs = append(errs, e.deliver(ctx, sess, id, ev)...)
		}
	}

	return errors.Join(errs...)
}

// deliver hands one logged event to every consumer in order and marks it
// dispatched. A failing consumer does not stop the others.
func (e *Engine) deliver(ctx context.Context, sess *session.Session, id string, ev model.Event) []error {
	var errs []error

	for _, c := range e.consumers {
		if err := e.consume(ctx, sess, c, ev); err != nil {
			slog.Error("consumer failed",
				"consumer", c.Name(),
				"session", sess.ID,
				"item", ev.ItemID,
				"kind", ev.Kind,
				"error", err,
			)
			errs = append(errs, NewConsumerError(sess.ID, c.Name(), ev, err))
		}
	}

	if err := e.store.MarkEventDispatched(ctx, id); err != nil {
		errs = append(errs, NewStoreError(sess.ID, ev, err))
	}
	return errs
}

func (e *Engine) consume(ctx context.Context, sess *session.Session, c Consumer, ev model.Event) error {
	ctx, span := e.tracer.Start(ctx, "consume "+c.Name(),
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("item.id", ev.ItemID),
			attribute.String("event.kind", string(ev.Kind)),
			attribute.Int64("item.version", ev.Version),
		),
	)
	defer span.End()

	err := c.Consume(ctx, sess, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// logEventError logs a dispatch failure with full event context.
func logEventError(ev model.Event, err error) {
	attrs := []any{
		"item", ev.ItemID,
		"kind", ev.Kind,
		"version", ev.Version,
		"error", err,
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		attrs = append(attrs, "code", re.Code, "consumer", re.Consumer)
	}
	slog.Error("event dispatch failed", attrs...)
}
