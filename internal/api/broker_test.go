package api

import (
	"testing"
	"time"

	"loyaltylink/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("9001")

	evt := model.StageEvent{OrderRef: "9001", Stage: model.StagePersisted, Outcome: "ok", Code: "A12345678"}
	b.Publish("9001", evt)

	select {
	case got := <-ch:
		if got.Stage != evt.Stage || got.Code != evt.Code {
			t.Fatalf("got %+v, want %+v", got, evt)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("9001", ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerFirehose(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe(Firehose)
	defer b.Unsubscribe(Firehose, all)

	b.Publish("9001", model.StageEvent{OrderRef: "9001", Stage: model.StageReceived, Outcome: "ok"})
	b.Publish("9002", model.StageEvent{OrderRef: "9002", Stage: model.StageReceived, Outcome: "ok"})

	for _, want := range []string{"9001", "9002"} {
		select {
		case got := <-all:
			if got.OrderRef != want {
				t.Fatalf("got order %s, want %s", got.OrderRef, want)
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("9001")
	defer b.Unsubscribe("9001", ch)

	// fill the buffer past capacity; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			b.Publish("9001", model.StageEvent{OrderRef: "9001", Stage: model.StageReceived, Outcome: "ok"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
