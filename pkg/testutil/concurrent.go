package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"ghostpass/pkg/platform/sentinel"
)

// ConcurrentResult counts how parallel calls ended.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	Replays   int32
	NotFounds int32
	Errors    int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.Replays + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines at once and buckets their errors by
// sentinel: ErrConflict, ErrAlreadyUsed, ErrNotFound, anything else.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		res   [5]atomic.Int32
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res[bucket(fn(i))].Add(1)
		}()
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes: res[0].Load(),
		Conflicts: res[1].Load(),
		Replays:   res[2].Load(),
		NotFounds: res[3].Load(),
		Errors:    res[4].Load(),
	}
}

func bucket(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, sentinel.ErrConflict):
		return 1
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return 2
	case errors.Is(err, sentinel.ErrNotFound):
		return 3
	default:
		return 4
	}
}
