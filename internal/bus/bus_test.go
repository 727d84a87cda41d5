package bus

import (
	"sync"
	"testing"
	"time"
)

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"*", "odds.betfair", true},
		{"a.*", "a.b", true},
		{"a.*", "a.b.c", true},
		{"a.*", "b.a", false},
		{"odds.*", "odds.alpha", true},
		{"odds.alpha", "odds.beta", false},
		{"feed.error.?", "feed.error.a", true},
		{"feed.error.?", "feed.error.ab", false},
	}
	for _, tc := range cases {
		if got := matchGlob(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestWildcardDelivery(t *testing.T) {
	b := New(Sync, nil)
	var h1, h2 int
	var mu sync.Mutex

	b.Subscribe("odds.*", func(Event) {
		mu.Lock()
		h1++
		mu.Unlock()
	})
	b.Subscribe("odds.alpha", func(Event) {
		mu.Lock()
		h2++
		mu.Unlock()
	})

	b.Publish("odds.alpha", "alpha", nil)
	b.Publish("odds.beta", "beta", nil)

	if h1 != 2 {
		t.Errorf("h1 = %d, want 2", h1)
	}
	if h2 != 1 {
		t.Errorf("h2 = %d, want 1", h2)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(Sync, nil)
	var count int
	sub := b.Subscribe("x.*", func(Event) { count++ })

	b.Publish("x.1", "s", nil)
	b.Unsubscribe(sub)
	b.Publish("x.2", "s", nil)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestUnsubscribeMidPublishDoesNotAffectInFlightEvent(t *testing.T) {
	b := New(Sync, nil)
	var sub Subscription
	var secondCalled bool

	// First handler unsubscribes a second handler registered after it;
	// the snapshot for THIS publish was already taken, so the second
	// handler must still fire for this event.
	b.Subscribe("x.*", func(Event) {
		b.Unsubscribe(sub)
	})
	sub = b.Subscribe("x.*", func(Event) { secondCalled = true })

	b.Publish("x.1", "s", nil)
	if !secondCalled {
		t.Error("expected second handler to still receive the in-flight event")
	}

	secondCalled = false
	b.Publish("x.2", "s", nil)
	if secondCalled {
		t.Error("expected second handler to be gone for the next publish")
	}
}

func TestHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	b := New(Sync, nil)
	var ran bool

	b.Subscribe("x.*", func(Event) { panic("boom") })
	b.Subscribe("x.*", func(Event) { ran = true })

	b.Publish("x.1", "s", nil)
	if !ran {
		t.Error("expected second handler to run despite first panicking")
	}
}

func TestAsyncDeliveryIsFIFOPerPublisher(t *testing.T) {
	b := New(Async, nil)
	defer b.Close()

	results := make(chan int, 10)
	b.Subscribe("seq.*", func(e Event) {
		results <- e.Payload.(int)
	})

	for i := 0; i < 5; i++ {
		b.Publish("seq.n", "s", i)
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-results:
			if got != i {
				t.Errorf("event %d out of order: got payload %d", i, got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for async delivery")
		}
	}
}

func TestAsyncDeliverySingleWorkerNoConcurrentInvocation(t *testing.T) {
	b := New(Async, nil)
	defer b.Close()

	var active int32
	var maxActive int32
	var mu sync.Mutex
	done := make(chan struct{})

	b.Subscribe("x.*", func(Event) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	})

	for i := 0; i < 4; i++ {
		b.Publish("x.1", "s", nil)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(done)
	}()
	<-done

	if maxActive > 1 {
		t.Errorf("maxActive = %d, want at most 1 (single delivery worker)", maxActive)
	}
}

func TestPublishEventMatchesFieldwisePublish(t *testing.T) {
	bA := New(Sync, nil)
	bB := New(Sync, nil)

	var gotA, gotB Event
	bA.Subscribe("*", func(e Event) { gotA = e })
	bB.Subscribe("*", func(e Event) { gotB = e })

	bA.Publish("t.1", "src", "payload")
	bB.PublishEvent(Event{Topic: "t.1", Source: "src", Payload: "payload"})

	if gotA.Topic != gotB.Topic || gotA.Source != gotB.Source || gotA.Payload != gotB.Payload {
		t.Errorf("PublishEvent produced different fields: %+v vs %+v", gotA, gotB)
	}
}
