package app_test

import (
	"sync"
	"testing"
	"time"

	"treasure-quest-service/internal/app"
	"treasure-quest-service/internal/domain"
)

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := app.NewHub()

	first, cancelFirst := hub.Subscribe("c1")
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe("c2")
	defer cancelSecond()

	hub.Broadcast(domain.Event{Type: "ping"})

	for _, ch := range []<-chan domain.Event{first, second} {
		evt := <-ch
		if evt.Type != "ping" {
			t.Fatalf("expected ping, got %s", evt.Type)
		}
	}
	if hub.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.Count())
	}
}

func TestHubDropsStaleEventsForSlowSubscriber(t *testing.T) {
	hub := app.NewHub()
	events, cancel := hub.Subscribe("slow")
	defer cancel()

	// Never draining: the hub must not block and the newest event must win.
	for i := 0; i < 40; i++ {
		hub.Broadcast(domain.Event{Type: "tick", Payload: i})
	}

	last := -1
	for drained := false; !drained; {
		select {
		case evt := <-events:
			last = evt.Payload.(int)
		default:
			drained = true
		}
	}
	if last != 39 {
		t.Fatalf("expected the latest event to be retained, got %d", last)
	}
}

func TestHubConcurrentBroadcastersNeverBlock(t *testing.T) {
	hub := app.NewHub()
	_, cancel := hub.Subscribe("stuck")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Broadcast(domain.Event{Type: "tick", Payload: j})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("broadcast wedged with a non-draining subscriber")
	}

	// Cancel must still be able to take the lock afterwards.
	cancel()
	if hub.Count() != 0 {
		t.Fatalf("expected no subscribers after cancel, got %d", hub.Count())
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := app.NewHub()
	events, cancel := hub.Subscribe("c1")
	cancel()

	if _, ok := <-events; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	if hub.Count() != 0 {
		t.Fatalf("expected no subscribers after cancel, got %d", hub.Count())
	}

	// Double cancel must be safe.
	cancel()
	hub.Broadcast(domain.Event{Type: "ping"})
}
