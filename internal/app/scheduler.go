package app

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. Production code uses time.AfterFunc;
// tests inject a manual scheduler to fire timers deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// RealScheduler is backed by time.AfterFunc.
func RealScheduler() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type taskKind int

const (
	// taskRound closes the open round when its time limit plus buffer elapses.
	taskRound taskKind = iota
	// taskAdvance begins the next round (or finishes) after the results pause.
	taskAdvance
	// taskTeardown releases room connections after the results window.
	taskTeardown
)

func (k taskKind) String() string {
	switch k {
	case taskRound:
		return "round"
	case taskAdvance:
		return "advance"
	case taskTeardown:
		return "teardown"
	}
	return "unknown"
}

type task struct {
	timer Timer
}
