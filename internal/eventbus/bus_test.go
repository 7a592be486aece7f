package eventbus

import (
	"testing"
	"time"

	"announcer/internal/host"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Ann"}})

	select {
	case ev := <-ch:
		if ev.Type != host.EventPlayerJoined {
			t.Fatalf("unexpected type: %v", ev.Type)
		}
		if ev.Time.IsZero() {
			t.Fatal("publish should stamp a time")
		}
		if d, ok := ev.Data.(host.PlayerJoined); !ok || d.Player != "Ann" {
			t.Fatalf("unexpected data: %#v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(host.Event{Type: host.EventGameEnded})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(host.Event{Type: host.EventGameEnded})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if n := len(ch); n != 1 {
		t.Fatalf("expected exactly the buffered event, got %d", n)
	}
}
