package wheel

import (
	"sync/atomic"
	"time"
)

// FrameScheduler fires frames at a fixed interval and hands each one to
// post, which must run it on the goroutine that owns the Wheel. post reports
// false if the owner has gone away and the frame was dropped.
type FrameScheduler struct {
	interval time.Duration
	post     func(fn func()) bool
}

// NewFrameScheduler returns a FrameScheduler firing every interval.
func NewFrameScheduler(interval time.Duration, post func(fn func()) bool) *FrameScheduler {
	return &FrameScheduler{
		interval: interval,
		post:     post,
	}
}

// Schedule arms a single frame. Cancelling after the timer fired but before
// the owner ran the frame still suppresses it.
func (s *FrameScheduler) Schedule(fn func()) func() {
	var cancelled atomic.Bool

	t := time.AfterFunc(s.interval, func() {
		if cancelled.Load() {
			return
		}
		s.post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})

	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}
