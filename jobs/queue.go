// Package jobs runs two phase jobs: Invoke on bounded worker goroutines and
// Apply on a single frame dispatching goroutine.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	// ErrTypeClosed is the error type of a job submitted to a closed queue.
	ErrTypeClosed = "queue_closed"

	DefaultWorkers       = 8
	DefaultFrameDuration = 16 * time.Millisecond
)

// FrameStamp numbers the dispatched frames.
type FrameStamp uint64

// Job is a unit of work split between a worker and the frame dispatcher.
// Apply is only called after Invoke returned, never concurrently with another
// Apply.
type Job interface {
	Invoke(ctx context.Context)
	Apply(stamp FrameStamp)
}

// Queue schedules jobs. Completed jobs are applied in no particular order.
type Queue struct {
	workers *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mutex     sync.Mutex
	closed    bool
	completed []Job

	applyMutex sync.Mutex
	frame      FrameStamp

	startFrameOnce sync.Once
	closeOnce      sync.Once
	closeFrameChan chan struct{}
	frameTicker    *time.Ticker
}

// NewQueue returns a queue invoking up to workers jobs at a time and
// dispatching a frame every frameDuration.
func NewQueue(workers int, frameDuration time.Duration) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		workers:        semaphore.NewWeighted(int64(workers)),
		ctx:            ctx,
		cancel:         cancel,
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
	}
}

// Submit invokes the job on a worker goroutine. It does not block.
func (q *Queue) Submit(job Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return errors.New("job queue is closed").WithType(ErrTypeClosed)
	}

	q.wg.Add(1)
	instrumentSubmit()

	go func() {
		defer q.wg.Done()

		if err := q.workers.Acquire(q.ctx, 1); err != nil {
			instrumentDiscard()
			return
		}
		start := time.Now()
		instrumentInvokeStart()
		job.Invoke(q.ctx)
		instrumentInvokeEnd(start)
		q.workers.Release(1)

		q.mutex.Lock()
		q.completed = append(q.completed, job)
		q.mutex.Unlock()
	}()
	return nil
}

// StartDispatchFrames applies the completed jobs on every frame until the
// queue is closed. It blocks and only runs once.
func (q *Queue) StartDispatchFrames() {
	q.startFrameOnce.Do(func() {
		for {
			select {
			case <-q.closeFrameChan:
				return

			case <-q.frameTicker.C:
				q.DrainOnce()
			}
		}
	})
}

// DrainOnce dispatches one frame: every job completed so far is applied, one
// at a time, and the number of applied jobs is returned.
func (q *Queue) DrainOnce() int {
	q.mutex.Lock()
	completed := q.completed
	q.completed = nil
	q.mutex.Unlock()

	q.applyMutex.Lock()
	defer q.applyMutex.Unlock()

	start := time.Now()
	q.frame++
	for _, job := range completed {
		job.Apply(q.frame)
	}
	instrumentFrame(start, len(completed))
	return len(completed)
}

// Frame returns the stamp of the last dispatched frame.
func (q *Queue) Frame() FrameStamp {
	q.applyMutex.Lock()
	defer q.applyMutex.Unlock()
	return q.frame
}

// Pending returns the number of jobs waiting to be applied.
func (q *Queue) Pending() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.completed)
}

// Wait blocks until every submitted job was invoked or discarded.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops the dispatcher and cancels the context of running invokes.
// Jobs waiting for a worker are discarded.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mutex.Lock()
		q.closed = true
		q.mutex.Unlock()

		q.cancel()
		q.frameTicker.Stop()
		q.closeFrameChan <- struct{}{}
		q.wg.Wait()
	})
}
