package router

import (
	"testing"
	"time"
)

func TestQueue_BasicSendReceive(t *testing.T) {
	q := NewQueue[int](0)

	for i := 0; i < 5; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := q.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_Unbounded(t *testing.T) {
	q := NewQueue[int](0)

	for i := 0; i < 10000; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := q.Stats()
	if stats.Count != 10000 {
		t.Errorf("Count = %d, want 10000", stats.Count)
	}
	if stats.HighWater != 10000 {
		t.Errorf("HighWater = %d, want 10000", stats.HighWater)
	}

	for i := 0; i < 10000; i++ {
		val, _ := q.TryReceive()
		if val != i {
			t.Fatalf("received %d, want %d", val, i)
		}
	}
}

func TestQueue_LimitDrops(t *testing.T) {
	q := NewQueue[int](3)

	for i := 0; i < 5; i++ {
		q.Send(i)
	}

	stats := q.Stats()
	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}

	q.TryReceive()
	if !q.Send(9) {
		t.Error("Send should succeed after room is freed")
	}
}

func TestQueue_BlockingReceive(t *testing.T) {
	q := NewQueue[int](0)

	received := make(chan int, 1)

	go func() {
		val, ok := q.Receive()
		if ok {
			received <- val
		}
	}()

	// Give receiver time to start waiting
	time.Sleep(10 * time.Millisecond)

	q.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int](0)

	q.Send(1)
	q.Send(2)
	q.Close()

	if q.Send(3) {
		t.Error("Send should return false after Close")
	}

	// Remaining items are still delivered
	if val, ok := q.Receive(); !ok || val != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", val, ok)
	}
	if val, ok := q.Receive(); !ok || val != 2 {
		t.Errorf("Receive() = %d, %v; want 2, true", val, ok)
	}
	if _, ok := q.Receive(); ok {
		t.Error("Receive should return false when empty and closed")
	}
}

func TestQueue_CloseUnblocksReceive(t *testing.T) {
	q := NewQueue[int](0)

	done := make(chan bool, 1)

	go func() {
		_, ok := q.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)

	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestQueue_DrainTo(t *testing.T) {
	q := NewQueue[int](0)

	for i := 0; i < 10; i++ {
		q.Send(i)
	}

	items := q.DrainTo(4)
	if len(items) != 4 {
		t.Fatalf("DrainTo(4) returned %d items, want 4", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}

	rest := q.DrainTo(0)
	if len(rest) != 6 || rest[0] != 4 {
		t.Errorf("DrainTo(0) = %v, want 4..9", rest)
	}

	if got := q.DrainTo(0); got != nil {
		t.Errorf("DrainTo on empty queue = %v, want nil", got)
	}

	stats := q.Stats()
	if stats.TotalReceived != 10 || stats.TotalSent != 10 {
		t.Errorf("TotalReceived/TotalSent = %d/%d, want 10/10", stats.TotalReceived, stats.TotalSent)
	}
}
