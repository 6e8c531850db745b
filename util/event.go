package util

import (
	"sync"
	"time"
)

// Event is a one-shot broadcast signal. Once notified it stays notified.
type Event struct {
	once sync.Once
	c    chan struct{}
}

func NewEvent() *Event {
	return &Event{
		c: make(chan struct{}),
	}
}

// Notify wakes every waiter. Calling it more than once is a no-op.
func (e *Event) Notify() {
	e.once.Do(func() {
		close(e.c)
	})
}

func (e *Event) Wait() {
	<-e.c
}

// Done returns a channel which is closed once the event has been notified.
func (e *Event) Done() <-chan struct{} {
	return e.c
}

func (e *Event) HasBeenNotified() bool {
	select {
	case <-e.c:
		return true
	default:
		return false
	}
}

// Sleep waits for d to elapse. It returns false if the event was notified
// first.
func (e *Event) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !e.HasBeenNotified()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.c:
		return false
	case <-t.C:
		return true
	}
}
