// Package scheduler abstracts time so every delayed action in the engine
// (verification retries, reconnect backoff, offer countdown, polling) can be
// driven by a manual clock in tests.
package scheduler

import "time"

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop prevents the call from running, it reports false if it already ran or was stopped.
	Stop() bool
}

// Scheduler schedules calls on a clock.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// New returns the wall clock scheduler.
func New() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
