// Package systems holds engine-wide services that are not tied to the renderer.
package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/bindless/engine/core"
)

// Job is a unit of work run on a worker goroutine. Jobs must not record
// commands or create device objects; those stay on the frame thread.
type Job func() error

type jobTask struct {
	run  Job
	done chan<- error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan jobTask
	wg         sync.WaitGroup

	mutex    sync.Mutex
	isClosed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system already shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan jobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.run()
				if err != nil {
					core.LogDebug("job failed: %s", err)
				}
				job.done <- err
			}
		}()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.isClosed {
		js.mutex.Unlock()
		return nil
	}
	js.isClosed = true
	close(js.jobQueue)
	js.mutex.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param job The work to run.
 * @return A channel that receives the job's result once.
 */
func (js *JobSystem) Submit(job Job) <-chan error {
	done := make(chan error, 1)

	js.mutex.Lock()
	defer js.mutex.Unlock()
	if js.isClosed {
		done <- ErrJobSystemClosed
		return done
	}
	js.jobQueue <- jobTask{run: job, done: done}
	return done
}

// Run submits every job and waits for all of them. The errors are joined.
func (js *JobSystem) Run(jobs ...Job) error {
	results := make([]<-chan error, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, js.Submit(job))
	}
	var errs []error
	for _, r := range results {
		if err := <-r; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
