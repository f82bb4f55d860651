package util

import (
	"sync"
)

// Event is a one-shot latch. Once notified it stays notified, and every
// current and future waiter is released.
type Event struct {
	once sync.Once
	c    chan struct{}
}

func NewEvent() *Event {
	return &Event{
		c: make(chan struct{}),
	}
}

func (e *Event) Notify() {
	e.once.Do(func() {
		close(e.c)
	})
}

func (e *Event) Wait() {
	<-e.c
}

// C returns a channel which is closed once the event has been notified. Useful
// in select statements, e.g. to bound a wait with a timeout.
func (e *Event) C() <-chan struct{} {
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
