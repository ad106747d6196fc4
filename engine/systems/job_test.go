package systems

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestRunWaitsForAllJobs(t *testing.T) {
	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	var count atomic.Int32
	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = func() error {
			count.Add(1)
			return nil
		}
	}
	require.NoError(t, js.Run(jobs...))
	assert.Equal(t, int32(10), count.Load())
}

func TestRunJoinsErrors(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	first := errors.New("first")
	second := errors.New("second")
	err = js.Run(
		func() error { return first },
		func() error { return nil },
		func() error { return second },
	)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	assert.ErrorIs(t, <-js.Submit(func() error { return nil }), ErrJobSystemClosed)
}
