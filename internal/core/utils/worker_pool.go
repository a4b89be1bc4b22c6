package utils

import "sync"

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool drains jobs with up to maxWorkers goroutines and delivers one
// CompletedTask per job on results, closing results once every job is done.
// The caller must have filled and closed jobs before calling; the worker
// count is capped at the number of queued jobs so small inputs do not spawn
// idle goroutines. Completion order is whatever order workers finish in.
func RunInPool[J any, R any](work func(J) (R, error), jobs chan J, results chan CompletedTask[R], maxWorkers int) {
	workers := min(len(jobs), maxWorkers)

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for job := range jobs {
					res, err := work(job)
					results <- CompletedTask[R]{Result: res, Error: err}
				}
			}()
		}

		wg.Wait()
		close(results)
	}()
}
