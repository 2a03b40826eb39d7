// Package music provides the listening profile model. This file implements a
// small fan-out helper used when a profile is assembled from several upstream
// calls that do not depend on each other.
package music

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of work run by Gather. Name identifies it in errors.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Gather runs every task concurrently and waits for all of them. Tasks write
// their results into variables owned by the caller, so each task must touch
// distinct state. When one or more tasks fail the error of the first failing
// task in argument order is returned, annotated with its name. A failure does
// not cancel the other tasks; callers that want that should derive ctx with
// context.WithCancel and cancel inside Run.
func Gather(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	type result struct {
		index int
		err   error
	}
	var wg sync.WaitGroup
	resCh := make(chan result, len(tasks))
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resCh <- result{index: i, err: task.Run(ctx)}
		}()
	}
	wg.Wait()
	close(resCh)

	errs := make([]error, len(tasks))
	for r := range resCh {
		errs[r.index] = r.err
	}
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("%s: %w", tasks[i].Name, err)
		}
	}
	return nil
}
