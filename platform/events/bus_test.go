package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"crmbot/platform/logger"
)

type testEvent struct{ BaseEvent }

func (testEvent) EventName() string { return "test.event" }

func TestPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var calls int32
	bus.Subscribe("test.event", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))
	bus.Subscribe("test.event", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent()})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected joined error boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var ran int32
	bus.Subscribe("test.event", HandlerFunc(func(context.Context, Event) error {
		panic("handler bug")
	}))
	bus.Subscribe("test.event", HandlerFunc(func(context.Context, Event) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{NewBaseEvent()})
	bus.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected healthy handler to run despite sibling panic")
	}
}

func TestBaseEventCarriesID(t *testing.T) {
	a, b := NewBaseEvent(), NewBaseEvent()
	if a.EventID() == "" || a.EventID() == b.EventID() {
		t.Fatalf("expected distinct ids, got %q and %q", a.EventID(), b.EventID())
	}
	if a.OccurredAt().IsZero() {
		t.Fatal("expected a timestamp")
	}
}
