package emergency

import (
	"sync"
	"time"
)

// Scheduler runs fn every interval until the returned stop func is called.
// stop must be idempotent and must not wait for an in-flight fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler is the time.Ticker backed Scheduler.
type TickerScheduler struct{}

// Every starts one goroutine per call.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
