package tracing

import (
	"sync"

	"github.com/sarchlab/i2cmux/sim"
)

// AverageTimeTracer measures how long the selected tasks take, for example
// the latency of client requests from submit to result.
type AverageTimeTracer struct {
	timeTeller sim.TimeTeller
	filter     TaskFilter

	lock     sync.Mutex
	started  map[string]sim.VTimeInSec
	finished uint64
	sum      sim.VTimeInSec
	longest  sim.VTimeInSec
}

// NewAverageTimeTracer returns a tracer timing the tasks filter accepts. A
// nil filter accepts all tasks.
func NewAverageTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	return &AverageTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		started:    make(map[string]sim.VTimeInSec),
	}
}

// AverageTime is the mean duration of the finished tasks.
func (t *AverageTimeTracer) AverageTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.finished == 0 {
		return 0
	}

	return t.sum / sim.VTimeInSec(t.finished)
}

// MaxTime is the longest finished task.
func (t *AverageTimeTracer) MaxTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.longest
}

// TotalCount is the number of finished tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.finished
}

// StartTask notes when an accepted task starts.
func (t *AverageTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.started[task.ID] = now
	t.lock.Unlock()
}

// StepTask is ignored.
func (t *AverageTimeTracer) StepTask(_ Task) {}

// EndTask adds the duration of a tracked task to the statistics.
func (t *AverageTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.started[task.ID]
	if !ok {
		return
	}
	delete(t.started, task.ID)

	d := Task{StartTime: start, EndTime: t.timeTeller.CurrentTime()}.Duration()
	t.sum += d
	t.finished++
	if d > t.longest {
		t.longest = d
	}
}
