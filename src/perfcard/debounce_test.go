package perfcard

import (
	"sync"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var mu sync.Mutex
	var got [][2]int
	done := make(chan struct{}, 4)
	d := NewDebouncer(20*time.Millisecond, func(w, h int) {
		mu.Lock()
		got = append(got, [2]int{w, h})
		mu.Unlock()
		done <- struct{}{}
	})
	d.Notify(100, 50)
	d.Notify(200, 80)
	d.Notify(300, 120)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("debouncer never fired")
	}
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != [2]int{300, 120} {
		t.Fatalf("debounced calls = %v want one call with the last size", got)
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	calls := 0
	d := NewDebouncer(time.Hour, func(w, h int) { calls++ })
	d.Notify(1, 1)
	d.Flush()
	if calls != 1 {
		t.Fatalf("flush calls = %d", calls)
	}
	d.Flush()
	if calls != 1 {
		t.Fatalf("flush without pending size must not fire")
	}
	d.Notify(2, 2)
	d.Stop()
	d.Flush()
	if calls != 1 {
		t.Fatalf("stopped notification fired")
	}
}
