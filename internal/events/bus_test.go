package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TaskStartedEvent{Name: "build", Wave: 0, Timestamp: time.Now()})

	received, ok := receive(t, ch).(TaskStartedEvent)
	if !ok {
		t.Fatal("expected TaskStartedEvent")
	}
	if received.Name != "build" {
		t.Errorf("expected task 'build', got %q", received.Name)
	}
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type %q, got %q", EventTypeTaskStarted, received.EventType())
	}
}

// TestMultipleSubscribers verifies every subscriber of a topic receives the event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskFinishedEvent{Name: "test", Status: "success", Attempts: 1})

	for i, ch := range []<-chan Event{ch1, ch2} {
		ev := receive(t, ch).(TaskFinishedEvent)
		if ev.Name != "test" {
			t.Errorf("subscriber %d: expected task 'test', got %q", i+1, ev.Name)
		}
	}
}

// TestTopicsAreIsolated verifies events only reach their own topic.
func TestTopicsAreIsolated(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	waves := bus.Subscribe(TopicWave, 10)
	tasks := bus.Subscribe(TopicTask, 10)

	bus.Publish(WaveStartedEvent{Index: 1, Tasks: []string{"a", "b"}})

	if ev := receive(t, waves); ev.EventType() != EventTypeWaveStarted {
		t.Errorf("expected wave.started, got %s", ev.EventType())
	}
	select {
	case ev := <-tasks:
		t.Errorf("task subscriber received %s", ev.EventType())
	default:
	}
}

// TestSubscribeAll verifies cross-topic subscribers see everything.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)

	bus.Publish(RunStartedEvent{RunID: "r1", Tasks: 2, Waves: 1})
	bus.Publish(WaveStartedEvent{Index: 0})
	bus.Publish(TaskStartedEvent{Name: "a"})
	bus.Publish(RunFinishedEvent{RunID: "r1", Status: "completed"})

	want := []string{EventTypeRunStarted, EventTypeWaveStarted, EventTypeTaskStarted, EventTypeRunFinished}
	for _, typ := range want {
		if ev := receive(t, all); ev.EventType() != typ {
			t.Errorf("expected %s, got %s", typ, ev.EventType())
		}
	}
}

// TestNonBlockingSend verifies a full subscriber does not block publishers.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	_ = bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskStartedEvent{Name: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if bus.Dropped() != 9 {
		t.Errorf("expected 9 dropped deliveries, got %d", bus.Dropped())
	}
}

// TestCloseSignalsSubscribers verifies Close closes every channel and is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicRun, 1)
	all := bus.SubscribeAll(1)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		if _, ok := <-c; ok {
			t.Error("expected closed channel")
		}
	}

	// Publishing and subscribing after close are safe.
	bus.Publish(RunStartedEvent{})
	if _, ok := <-bus.Subscribe(TopicRun, 1); ok {
		t.Error("subscription after close should be closed")
	}
}

// TestNilBusPublish verifies publishing to a nil bus is a no-op.
func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(TaskStartedEvent{Name: "x"})
}
