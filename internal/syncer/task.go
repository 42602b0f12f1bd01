package syncer

import (
	"context"
	"sync"
)

// Task is a sync running in the background. Its terminal result is set exactly
// once and can be awaited any number of times.
type Task struct {
	ID string

	once   sync.Once
	done   chan struct{}
	report Report
	err    error
}

func newTask(id string) *Task {
	return &Task{ID: id, done: make(chan struct{})}
}

func (t *Task) finish(report Report, err error) {
	t.once.Do(func() {
		t.report = report
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task reaches a terminal state
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is cancelled. Cancelling ctx stops
// the wait, not the sync.
func (t *Task) Wait(ctx context.Context) (Report, error) {
	select {
	case <-t.done:
		return t.report, t.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Finished reports whether the task has reached a terminal state
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
