// Package events is the in-process event bus that connects the dispatcher,
// the HTTP API and the scan workers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
	"mentionscan/internal/workflow"
)

var ErrNoHandler = errors.New("no handler registered")

// Event is the envelope handed to handlers. Payloads travel as JSON so
// handlers never share memory with the sender.
type Event struct {
	ID        uuid.UUID       `json:"event_id"`
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return workflow.Permanent(fmt.Errorf("decode %s payload: %w", e.Name, err))
	}
	return nil
}

type Handler func(ctx context.Context, ev Event) error

// Bus delivers every event to its handlers asynchronously, retrying failed
// handlers through the workflow runner.
type Bus struct {
	runner *workflow.Runner
	log    logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ ports.EventBus = (*Bus)(nil)

func New(runner *workflow.Runner, log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	if runner == nil {
		runner = workflow.NewRunner(workflow.DefaultConfig(), log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{runner: runner, log: log, handlers: map[string][]Handler{}, ctx: ctx, cancel: cancel}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Send enqueues payload for every handler of name. It returns once the
// event is accepted, not when handlers finish.
func (b *Bus) Send(ctx context.Context, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()
	if len(hs) == 0 {
		return fmt.Errorf("%s: %w", name, ErrNoHandler)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := Event{ID: uuid.New(), Name: name, Timestamp: time.Now().UTC(), Payload: raw}
	for _, h := range hs {
		b.wg.Add(1)
		go b.deliver(ev, h)
	}
	return nil
}

func (b *Bus) deliver(ev Event, h Handler) {
	defer b.wg.Done()
	log := b.log.With(logger.String("event", ev.Name), logger.String("event_id", ev.ID.String()))
	err := b.runner.Step(b.ctx, ev.Name, func(ctx context.Context) error {
		return h(ctx, ev)
	})
	if err != nil {
		log.Error("event handler gave up", logger.Error(err))
	}
}

// Wait blocks until all accepted events have been handled.
func (b *Bus) Wait() { b.wg.Wait() }

// Close cancels in-flight handlers and waits for them to return.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
