// Package settle provides a task group that joins N independent
// operations and reports per-item success or failure, without one failure
// canceling its siblings. It is the structured replacement for
// fire-everything-and-collect fan-out: callers inspect the error slice
// after Wait and decide how much failure they tolerate.
//
// For all-or-nothing joins use golang.org/x/sync/errgroup instead.
package settle

import "sync"

// Group runs tasks concurrently and collects their results.
// The zero value is ready to use. Not reusable after Wait.
type Group struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Go starts fn in its own goroutine. The task's result lands at the index
// corresponding to submission order. Panics are not recovered; tasks are
// expected to return errors.
func (g *Group) Go(fn func() error) {
	g.mu.Lock()
	idx := len(g.errs)
	g.errs = append(g.errs, nil)
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		err := fn()
		g.mu.Lock()
		g.errs[idx] = err
		g.mu.Unlock()
	}()
}

// Wait blocks until every task has finished and returns their errors in
// submission order (nil entries for successes).
func (g *Group) Wait() []error {
	g.wg.Wait()
	return g.errs
}

// Failed returns the non-nil entries of errs, preserving order.
func Failed(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
