package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/i2cmux/sim"
)

type interval struct {
	start, end sim.VTimeInSec
}

// BusyTimeTracer measures the time during which a domain works on at least
// one task. Overlapping tasks are counted once.
type BusyTimeTracer struct {
	timeTeller sim.TimeTeller
	filter     TaskFilter

	lock      sync.Mutex
	inflight  map[string]sim.VTimeInSec
	intervals []interval
}

// NewBusyTimeTracer creates a new BusyTimeTracer. A nil filter accepts every
// task.
func NewBusyTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	return &BusyTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[string]sim.VTimeInSec),
	}
}

// StartTask records the task start time
func (t *BusyTimeTracer) StartTask(task Task) {
	now := t.timeTeller.CurrentTime()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflight[task.ID] = now
	t.lock.Unlock()
}

// StepTask does nothing
func (t *BusyTimeTracer) StepTask(_ Task) {}

// EndTask records the end of the task
func (t *BusyTimeTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	delete(t.inflight, task.ID)
	t.intervals = append(t.intervals, interval{start: start, end: now})
}

// TerminateAllTasks ends every unfinished task at now.
func (t *BusyTimeTracer) TerminateAllTasks(now sim.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for id, start := range t.inflight {
		t.intervals = append(t.intervals, interval{start: start, end: now})
		delete(t.inflight, id)
	}
}

// BusyTime returns the length of the union of all finished tasks.
func (t *BusyTimeTracer) BusyTime() sim.VTimeInSec {
	t.lock.Lock()
	list := make([]interval, len(t.intervals))
	copy(list, t.intervals)
	t.lock.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].start < list[j].start })

	busy := sim.VTimeInSec(0)
	var cur interval
	for i, iv := range list {
		if i == 0 {
			cur = iv
			continue
		}

		if iv.start <= cur.end {
			if iv.end > cur.end {
				cur.end = iv.end
			}
			continue
		}

		busy += cur.end - cur.start
		cur = iv
	}

	if len(list) > 0 {
		busy += cur.end - cur.start
	}

	return busy
}
