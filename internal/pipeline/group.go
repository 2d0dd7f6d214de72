package pipeline

import (
	"fmt"
	"sync"
)

// TaskError is one sub-task's failure, kept with enough context to
// diagnose which unit of work it belonged to.
type TaskError struct {
	Task string
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Task, e.Err)
}

func (e TaskError) Unwrap() error { return e.Err }

// Group fans independent sub-tasks out as goroutines and joins all of
// them. Every launched task is tracked: Wait resolves the full set, and
// every failure is collected rather than only the last one. A failed
// task never aborts its siblings.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []TaskError
}

// Go launches one named sub-task.
func (g *Group) Go(task string, fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, TaskError{Task: task, Err: err})
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every launched sub-task has finished and returns all
// collected failures in completion order. Wait is all-or-nothing: there
// is no partial join.
func (g *Group) Wait() []TaskError {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs
}
