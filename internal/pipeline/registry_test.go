package pipeline

import "testing"

func TestRegistryObserveIsIdempotent(t *testing.T) {
	bus := NewBus()
	registry := NewRegistry(bus, RegistryOptions{})
	defer registry.Close()

	first := registry.Observe("s1")
	second := registry.Observe("s1")
	if first != second {
		t.Fatalf("expected one tracker per session")
	}
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscriber count=%d, want 1", bus.SubscriberCount())
	}
}

func TestRegistrySessionHooks(t *testing.T) {
	bus := NewBus()
	var completed, failed []string
	registry := NewRegistry(bus, RegistryOptions{
		OnSessionComplete: func(sessionID string) { completed = append(completed, sessionID) },
		OnSessionError:    func(sessionID, message string) { failed = append(failed, sessionID+":"+message) },
	})
	defer registry.Close()

	registry.Observe("s1")
	registry.Observe("s2")

	bus.Publish(&StartedEvent{SessionID: "s1", TotalStages: 1})
	bus.Publish(&CompletedEvent{SessionID: "s1", TotalDurationMs: 10})
	bus.Publish(&FailedEvent{SessionID: "s2", Error: "boom", FailedStage: "encode"})

	if len(completed) != 1 || completed[0] != "s1" {
		t.Fatalf("completed hooks=%v", completed)
	}
	if len(failed) != 1 || failed[0] != "s2:boom" {
		t.Fatalf("error hooks=%v", failed)
	}
}

func TestRegistryReleaseClosesTracker(t *testing.T) {
	bus := NewBus()
	registry := NewRegistry(bus, RegistryOptions{})
	defer registry.Close()

	registry.Observe("s1")
	registry.Release("s1")

	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked after release")
	}
	if _, ok := registry.Lookup("s1"); ok {
		t.Fatalf("released session still tracked")
	}
}

func TestRegistryCloseStopsObserve(t *testing.T) {
	bus := NewBus()
	registry := NewRegistry(bus, RegistryOptions{})
	registry.Observe("s1")
	registry.Close()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("close left subscriptions")
	}
	if tracker := registry.Observe("s2"); tracker != nil {
		t.Fatalf("observe after close created a tracker")
	}
}
