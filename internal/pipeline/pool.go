package pipeline

import (
	"context"
	"sync"
)

type poolResult[Out any] struct {
	value Out
	err   error
}

type poolJob[In, Out any] struct {
	input In
	out   chan poolResult[Out]
}

// runOrdered fans inputs out to a worker pool and yields results in input
// order. Each job gets a one-slot result channel; the consumer reads the
// channels in submission order, so completion order never leaks through.
// depth bounds how many results can be queued ahead of the consumer, which
// keeps the stage pull-driven: a stalled consumer stalls the workers.
func runOrdered[In, Out any](ctx context.Context, workers, depth int, inputs []In, fn func(context.Context, In) (Out, error)) func(yield func(Out, error) bool) {
	return func(yield func(Out, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup

		defer wg.Wait()
		defer cancel()

		jobs := make(chan poolJob[In, Out])
		slots := make(chan chan poolResult[Out], depth)

		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for job := range jobs {
					value, err := fn(ctx, job.input)
					job.out <- poolResult[Out]{value: value, err: err}
				}
			}()
		}

		go func() {
			defer close(slots)
			defer close(jobs)
			for _, input := range inputs {
				out := make(chan poolResult[Out], 1)
				select {
				case jobs <- poolJob[In, Out]{input: input, out: out}:
				case <-ctx.Done():
					return
				}
				select {
				case slots <- out:
				case <-ctx.Done():
					return
				}
			}
		}()

		for out := range slots {
			result := <-out
			if !yield(result.value, result.err) {
				return
			}
			if result.err != nil {
				return
			}
		}
	}
}
