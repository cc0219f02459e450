package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"ghostpass/pkg/platform/sentinel"
)

func TestRunConcurrentBuckets(t *testing.T) {
	res := RunConcurrent(10, func(i int) error {
		switch i % 5 {
		case 0:
			return nil
		case 1:
			return fmt.Errorf("station busy: %w", sentinel.ErrConflict)
		case 2:
			return sentinel.ErrAlreadyUsed
		case 3:
			return sentinel.ErrNotFound
		default:
			return errors.New("boom")
		}
	})
	assert.Equal(t, int32(2), res.Successes)
	assert.Equal(t, int32(2), res.Conflicts)
	assert.Equal(t, int32(2), res.Replays)
	assert.Equal(t, int32(2), res.NotFounds)
	assert.Equal(t, int32(2), res.Errors)
	assert.Equal(t, int32(10), res.Total())
}
