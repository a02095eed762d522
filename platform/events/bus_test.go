package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leadfunnel_backend/platform/logger"
)

type pinged struct {
	BaseEvent
}

func (pinged) EventName() string { return "test.pinged" }

func TestPublishRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, event Event) error {
			calls.Add(1)
			return nil
		}))
	}

	bus.Publish(context.Background(), pinged{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if calls.Load() != 3 {
		t.Fatalf("expected 3 handler calls, got %d", calls.Load())
	}
}

func TestPublishDetachesCancellation(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	seen := make(chan error, 1)
	bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, event Event) error {
		seen <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pinged{BaseEvent: NewBaseEvent()})

	select {
	case err := <-seen:
		if err != nil {
			t.Fatalf("expected detached context, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	var calls atomic.Int32
	bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, event Event) error { return errors.New("boom") }))
	bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	}))
	bus.Subscribe("test.other", HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(100)
		return nil
	}))

	bus.Publish(context.Background(), pinged{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected only the healthy pinged handler to run, got %d", calls.Load())
	}
}

func TestNewBaseEventIsUTC(t *testing.T) {
	if loc := NewBaseEvent().OccurredAt().Location(); loc != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", loc)
	}
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))
	bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, event Event) error { panic("handler bug") }))

	bus.Publish(context.Background(), pinged{BaseEvent: NewBaseEvent()})
	bus.Wait()
}
