package router

import "time"

// InvocationEvent describes one completed invocation: an attempt-set
// that ended in a result or a terminal error. Every call to Invoke
// produces exactly one of these.
type InvocationEvent struct {
	Capability string
	Arguments  map[string]interface{}
	Outcome    string // "result" or "error"
	ErrorKind  ErrorKind
	Attempts   int
	Duration   time.Duration
}

// Observer receives invocation completions. Delivery is best-effort:
// the router does not depend on an observer succeeding and an observer
// must not block.
type Observer interface {
	InvocationCompleted(event InvocationEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event InvocationEvent)

func (f ObserverFunc) InvocationCompleted(event InvocationEvent) {
	f(event)
}
