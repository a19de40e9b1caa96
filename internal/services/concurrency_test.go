package services

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAutomationLimiter_TryAcquireRelease(t *testing.T) {
	l := NewAutomationLimiter()

	if !l.TryAcquire("a") {
		t.Fatal("first acquire should succeed")
	}
	if l.TryAcquire("a") {
		t.Fatal("second acquire of the same automation should fail")
	}
	if !l.TryAcquire("b") {
		t.Fatal("other automations are independent")
	}
	if got := l.Active(); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}

	l.Release("a")
	if !l.TryAcquire("a") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestAutomationLimiter_OneWinnerUnderContention(t *testing.T) {
	l := NewAutomationLimiter()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("a") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}
