package stream

import (
	"sync"
	"testing"
)

func TestSubscriberSendAfterCloseDropped(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("closing-sub", 4, 100)
	sub.Close()
	sub.Close() // double close is fine

	if sub.send(&Event{Topic: TopicFirehose}) {
		t.Fatal("send after Close reported delivery")
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("closed subscriber channel yielded an event")
	}
}

func TestSubscriberCloseDuringConcurrentSends(t *testing.T) {
	t.Parallel()

	// Hammer send from many goroutines while Close races in. A send
	// landing after the close must drop the event, never panic.
	for i := 0; i < 50; i++ {
		sub := NewSubscriber("racing-sub", 1, 1<<20)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 100; n++ {
					sub.send(&Event{Topic: TopicFirehose})
				}
			}()
		}
		go sub.Close()
		wg.Wait()
	}
}

func TestSubscriberCreditsExhaust(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 8, 2)

	if !sub.send(&Event{Topic: TopicFirehose}) {
		t.Fatal("first send dropped")
	}
	if !sub.send(&Event{Topic: TopicFirehose}) {
		t.Fatal("second send dropped")
	}
	if sub.send(&Event{Topic: TopicFirehose}) {
		t.Fatal("send with no credits delivered")
	}
	if sub.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", sub.Dropped())
	}

	sub.AddCredits(1)
	if !sub.send(&Event{Topic: TopicFirehose}) {
		t.Fatal("send after credit top-up dropped")
	}
}
