package tracing

import "github.com/sarchlab/i2cmux/sim"

// Task kinds recorded by the I2C stack.
const (
	KindRequest  = "req"  // a client request, from submit to result
	KindForward  = "fwd"  // the broker moving a request to the driver
	KindDeliver  = "dlv"  // the broker routing a response back
	KindTransfer = "xfer" // one batch run on the controller
)

// TaskStep is a named milestone inside a task, such as "nack" or
// "delivered".
type TaskStep struct {
	Time sim.VTimeInSec `json:"time"`
	What string         `json:"what"`
}

// Task is one traced unit of work. ParentID links a forward to the request
// it carries when both ends are known.
type Task struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parent_id"`
	Kind      string         `json:"kind"`
	What      string         `json:"what"`
	Where     string         `json:"where"`
	StartTime sim.VTimeInSec `json:"start_time"`
	EndTime   sim.VTimeInSec `json:"end_time"`
	Steps     []TaskStep     `json:"steps"`
	Detail    any            `json:"-"`
}

// Duration is EndTime minus StartTime, or 0 while the task is open.
func (t Task) Duration() sim.VTimeInSec {
	if t.EndTime < t.StartTime {
		return 0
	}

	return t.EndTime - t.StartTime
}

// TaskFilter selects the tasks a tracer cares about.
type TaskFilter func(t Task) bool

// KindIs accepts tasks whose Kind is one of kinds.
func KindIs(kinds ...string) TaskFilter {
	return func(t Task) bool {
		for _, k := range kinds {
			if t.Kind == k {
				return true
			}
		}

		return false
	}
}

// WhereIs accepts tasks run by the named component.
func WhereIs(where string) TaskFilter {
	return func(t Task) bool {
		return t.Where == where
	}
}

// And accepts tasks that pass every filter. Nil filters are skipped.
func And(filters ...TaskFilter) TaskFilter {
	return func(t Task) bool {
		for _, f := range filters {
			if f != nil && !f(t) {
				return false
			}
		}

		return true
	}
}
