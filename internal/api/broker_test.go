package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	key := "res_1"
	ch := b.Subscribe(key)
	defer func() { recover() }() // ignore close panic if already closed

	evt := SSEEvent{Type: "reservation.assigned", Data: map[string]any{"vehicleId": "v1"}}
	b.Publish(key, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["vehicleId"].(string) != "v1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(key, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("v1")
	for i := 0; i < 20; i++ {
		b.Publish("v1", SSEEvent{Type: "vehicle.telemetry", Data: map[string]any{"i": i}})
	}
	// buffered at 8; the rest must have been dropped, not blocked
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			if n == 0 || n > 8 {
				t.Fatalf("buffered %d events", n)
			}
			b.Unsubscribe("v1", ch)
			return
		}
	}
}
