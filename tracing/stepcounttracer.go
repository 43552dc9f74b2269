package tracing

import "sync"

type stepStat struct {
	steps uint64 // times the step was reported
	tasks uint64 // tasks that reported it at least once
}

// StepCountTracer counts task steps by name, such as how many forwards the
// broker refused as "not-owned".
type StepCountTracer struct {
	filter TaskFilter

	lock  sync.Mutex
	open  map[string]map[string]struct{}
	order []string
	stats map[string]*stepStat
}

// NewStepCountTracer counts the steps of the tasks filter accepts. A nil
// filter accepts all tasks.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	return &StepCountTracer{
		filter: filter,
		open:   make(map[string]map[string]struct{}),
		stats:  make(map[string]*stepStat),
	}
}

// GetStepNames lists the step names in the order first seen.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.order...)
}

// GetStepCount is how many times the step was reported.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	return t.stat(stepName).steps
}

// GetTaskCount is how many tasks reported the step.
func (t *StepCountTracer) GetTaskCount(stepName string) uint64 {
	return t.stat(stepName).tasks
}

// Counts returns the step counts keyed by step name.
func (t *StepCountTracer) Counts() map[string]uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	counts := make(map[string]uint64, len(t.stats))
	for name, s := range t.stats {
		counts[name] = s.steps
	}

	return counts
}

func (t *StepCountTracer) stat(name string) stepStat {
	t.lock.Lock()
	defer t.lock.Unlock()

	if s, ok := t.stats[name]; ok {
		return *s
	}

	return stepStat{}
}

// StartTask begins tracking an accepted task.
func (t *StepCountTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.open[task.ID] = make(map[string]struct{})
	t.lock.Unlock()
}

// StepTask counts the steps of a tracked task.
func (t *StepCountTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	seen, ok := t.open[task.ID]
	if !ok {
		return
	}

	for _, step := range task.Steps {
		s, ok := t.stats[step.What]
		if !ok {
			s = &stepStat{}
			t.stats[step.What] = s
			t.order = append(t.order, step.What)
		}

		s.steps++
		if _, dup := seen[step.What]; !dup {
			seen[step.What] = struct{}{}
			s.tasks++
		}
	}
}

// EndTask stops tracking the task.
func (t *StepCountTracer) EndTask(task Task) {
	t.lock.Lock()
	delete(t.open, task.ID)
	t.lock.Unlock()
}
