package pool

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorkQueueFIFO(t *testing.T) {
	q := newWorkQueue()

	var got []int
	for i := range 5 {
		if err := q.send(func() { got = append(got, i) }); err != nil {
			t.Fatal(err)
		}
	}
	if n := q.len(); n != 5 {
		t.Errorf("len = %d, want 5", n)
	}

	for range 5 {
		job, ok := q.recv()
		if !ok {
			t.Fatal("recv reported closed on an open queue")
		}
		job()
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got order %v, want 0..4", got)
		}
	}
	if n := q.len(); n != 0 {
		t.Errorf("len = %d after draining, want 0", n)
	}
}

func TestWorkQueueDrainsAfterClose(t *testing.T) {
	q := newWorkQueue()
	for range 2 {
		if err := q.send(func() {}); err != nil {
			t.Fatal(err)
		}
	}

	q.close(nil)

	for i := range 2 {
		if _, ok := q.recv(); !ok {
			t.Errorf("queued job %d lost on close", i)
		}
	}
	if _, ok := q.recv(); ok {
		t.Error("closed and empty queue should report closed")
	}
}

func TestWorkQueueSendAfterClose(t *testing.T) {
	q := newWorkQueue()

	calls := 0
	q.close(func() { calls++ })
	q.close(func() { calls++ }) // second close is a no-op

	if calls != 1 {
		t.Errorf("onClose ran %d times, want 1", calls)
	}
	if err := q.send(func() {}); !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("send after close = %v, want ErrPoolShutdown", err)
	}
	if n := q.len(); n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
}

func TestWorkQueueCloseWakesReceivers(t *testing.T) {
	q := newWorkQueue()

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.recv(); ok {
				t.Error("recv returned a job from an empty queue")
			}
		}()
	}

	// Let the receivers park on the condition variable.
	time.Sleep(20 * time.Millisecond)
	q.close(nil)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receivers still blocked after close")
	}
}

func TestWorkQueueRecvBlocksUntilSend(t *testing.T) {
	q := newWorkQueue()

	received := make(chan struct{})
	go func() {
		job, ok := q.recv()
		if ok {
			job()
		}
	}()

	select {
	case <-received:
		t.Fatal("recv returned before any send")
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.send(func() { close(received) }); err != nil {
		t.Fatal(err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not pick up the job")
	}
}
