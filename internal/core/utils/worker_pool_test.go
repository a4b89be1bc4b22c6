package utils_test

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"stormlens-backend/internal/core/utils"

	"github.com/stretchr/testify/assert"
)

func TestRunInPool(t *testing.T) {
	work := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("tile %d is unreadable", i)
		}
		return fmt.Sprintf("tile-%d", i), nil
	}

	jobs := make(chan int, 10)
	for i := 0; i < 10; i++ {
		jobs <- i
	}
	close(jobs)

	results := make(chan utils.CompletedTask[string], 10)
	utils.RunInPool(work, jobs, results, 5)

	var succeeded []string
	var failed []string
	for result := range results {
		if result.Error != nil {
			failed = append(failed, result.Error.Error())
		} else {
			succeeded = append(succeeded, result.Result)
		}
	}

	assert.Len(t, succeeded, 8)
	assert.Len(t, failed, 2)

	sort.Strings(failed)
	assert.Equal(t, []string{"tile 3 is unreadable", "tile 7 is unreadable"}, failed)
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	jobs := make(chan int)
	close(jobs)

	results := make(chan utils.CompletedTask[int])
	utils.RunInPool(func(i int) (int, error) { return i, nil }, jobs, results, 4)

	_, open := <-results
	assert.False(t, open, "results should close with no jobs queued")
}
