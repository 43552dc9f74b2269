package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// ProgressBar tracks a long operation, such as the rounds of a scenario, for
// the dashboard. It is safe to update while the monitor serves it.
type ProgressBar struct {
	id    string
	name  string
	start time.Time
	total uint64

	lock       sync.Mutex
	finished   uint64
	inProgress uint64
}

type progressJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// MarshalJSON takes a consistent snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.lock.Lock()
	snapshot := progressJSON{
		ID:         b.id,
		Name:       b.name,
		StartTime:  b.start,
		Total:      b.total,
		Finished:   b.finished,
		InProgress: b.inProgress,
	}
	b.lock.Unlock()

	return json.Marshal(snapshot)
}

// IncrementInProgress marks n more items as started.
func (b *ProgressBar) IncrementInProgress(n uint64) {
	b.lock.Lock()
	b.inProgress += n
	b.lock.Unlock()
}

// MoveInProgressToFinished marks up to n started items as done.
func (b *ProgressBar) MoveInProgressToFinished(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	n = min(n, b.inProgress)
	b.inProgress -= n
	b.finished += n
}
