package channel

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

func TestSingleProducerOrdering(t *testing.T) {
	ch := New()

	const n = 1000
	go func() {
		for i := 1; i <= n; i++ {
			if err := ch.Send(NewMessage([]byte(fmt.Sprintf("%d", i)))); err != nil {
				t.Errorf("Send: %v", err)
				return
			}
		}
	}()

	var got []string
	for i := 0; i < n; i++ {
		msg, ok := ch.Recv()
		if !ok {
			t.Fatalf("Recv returned ok=false before producer finished")
		}
		got = append(got, string(msg.Payload))
	}

	var want []string
	for i := 1; i <= n; i++ {
		want = append(want, fmt.Sprintf("%d", i))
	}

	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("received sequence did not match send order (-want +got):\n%s", diff)
	}
}

func TestBlockingWake(t *testing.T) {
	ch := New()

	done := make(chan *Message, 1)
	go func() {
		msg, ok := ch.Recv()
		if !ok {
			close(done)
			return
		}
		done <- msg
	}()

	// Give the receiver a chance to block before we send.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := ch.Send(NewMessage([]byte("hello"))); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg, ok := <-done:
		if !ok {
			t.Fatalf("receiver saw a closed channel, not the sent message")
		}
		if string(msg.Payload) != "hello" {
			t.Fatalf("got payload %q, want %q", msg.Payload, "hello")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("receiver took %v to wake after Send", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatalf("receiver never woke up after Send")
	}
}

func TestManyProducersManyConsumersExactlyOnce(t *testing.T) {
	ch := New()

	const producers = 8
	const perProducer = 200
	const consumers = 4

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = ch.Send(NewMessage([]byte(fmt.Sprintf("%d:%d", p, i))))
			}
		}(p)
	}

	total := producers * perProducer
	results := make(chan string, total)
	var consumerWG sync.WaitGroup
	consumerWG.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWG.Done()
			for i := 0; i < total/consumers; i++ {
				msg, ok := ch.Recv()
				if !ok {
					return
				}
				results <- string(msg.Payload)
			}
		}()
	}

	wg.Wait()
	consumerWG.Wait()
	close(results)

	seen := make(map[string]bool, total)
	count := 0
	for r := range results {
		if seen[r] {
			t.Fatalf("message %q observed more than once", r)
		}
		seen[r] = true
		count++
	}
	if count != total {
		t.Fatalf("got %d messages, want %d", count, total)
	}
}

func TestCloseWakesBlockedReceiver(t *testing.T) {
	ch := New()

	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Recv()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("Recv returned ok=true on an empty closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv never woke up after Close")
	}

	if err := ch.Send(NewMessage(nil)); err != ErrClosed {
		t.Fatalf("Send after Close returned %v, want ErrClosed", err)
	}
}

func TestPendingAdvisory(t *testing.T) {
	ch := New()
	if ch.Pending() {
		t.Fatalf("Pending true on empty channel")
	}
	_ = ch.Send(NewMessage([]byte("x")))
	if !ch.Pending() {
		t.Fatalf("Pending false after Send")
	}
	ch.Recv()
	if ch.Pending() {
		t.Fatalf("Pending true after drain")
	}
}
