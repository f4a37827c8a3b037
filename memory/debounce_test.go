package memory

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var fired int32
	var last int32
	for i := int32(1); i <= 5; i++ {
		i := i
		d.Trigger(func() {
			atomic.AddInt32(&fired, 1)
			atomic.StoreInt32(&last, i)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired %d times, want 1 (rapid triggers must coalesce)", got)
	}
	if got := atomic.LoadInt32(&last); got != 5 {
		t.Errorf("last fired trigger = %d, want the most recent (5)", got)
	}
}

func TestDebouncerSeparateBursts(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var fired int32
	d.Trigger(func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(50 * time.Millisecond)
	d.Trigger(func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 2 {
		t.Errorf("fired %d times, want 2", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired int32
	d.Trigger(func() { atomic.AddInt32(&fired, 1) })
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Errorf("fired %d times after Cancel(), want 0", got)
	}
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)

	var fired int32
	d.Trigger(func() { atomic.AddInt32(&fired, 1) })
	d.Flush()

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired %d times after Flush(), want 1 immediately", got)
	}

	// The timer must not fire the same pending function again.
	d.Flush()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("second Flush() re-ran the pending function")
	}
}
