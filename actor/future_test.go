package actor

import (
	"testing"
	"time"
)

func TestFutureAwaitBlocksUntilComplete(t *testing.T) {
	f := newFuture[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.complete(42)
	}()
	v, ok := f.Await(time.Second)
	if !ok || v != 42 {
		t.Fatalf("Await = (%d, %v), want (42, true)", v, ok)
	}
}

func TestFutureAwaitTimesOut(t *testing.T) {
	f := newFuture[int]()
	_, ok := f.Await(10 * time.Millisecond)
	if ok {
		t.Fatalf("expected Await to time out on an unfinished future")
	}
}

func TestFutureCompleteIsIdempotent(t *testing.T) {
	f := newFuture[int]()
	f.complete(1)
	f.complete(2)
	v, ok := f.Await(time.Second)
	if !ok || v != 1 {
		t.Fatalf("expected the first complete to win, got (%d, %v)", v, ok)
	}
}

func TestFutureOnCompleteAfterResolutionRunsImmediately(t *testing.T) {
	f := newFuture[int]()
	f.complete(7)
	var got int
	f.OnComplete(func(v int) { got = v })
	if got != 7 {
		t.Fatalf("OnComplete after resolution got %d, want 7", got)
	}
}
