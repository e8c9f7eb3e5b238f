package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	invoke func(ctx context.Context)
	apply  func(stamp FrameStamp)
}

func (j *testJob) Invoke(ctx context.Context) {
	if j.invoke != nil {
		j.invoke(ctx)
	}
}

func (j *testJob) Apply(stamp FrameStamp) {
	if j.apply != nil {
		j.apply(stamp)
	}
}

func TestQueueDrainOnce(t *testing.T) {
	q := NewQueue(4, time.Hour)
	defer q.Close()

	var invoked int32
	var mutex sync.Mutex
	var stamps []FrameStamp

	for i := 0; i < 10; i++ {
		err := q.Submit(&testJob{
			invoke: func(ctx context.Context) { atomic.AddInt32(&invoked, 1) },
			apply: func(stamp FrameStamp) {
				mutex.Lock()
				stamps = append(stamps, stamp)
				mutex.Unlock()
			},
		})
		require.NoError(t, err)
	}

	q.Wait()
	require.Equal(t, int32(10), atomic.LoadInt32(&invoked))
	require.Equal(t, 10, q.Pending())

	require.Equal(t, 10, q.DrainOnce())
	require.Zero(t, q.Pending())
	require.Equal(t, FrameStamp(1), q.Frame())
	require.Len(t, stamps, 10)
	for _, s := range stamps {
		require.Equal(t, FrameStamp(1), s)
	}

	require.Zero(t, q.DrainOnce())
	require.Equal(t, FrameStamp(2), q.Frame())
}

func TestQueueWorkerBound(t *testing.T) {
	q := NewQueue(2, time.Hour)
	defer q.Close()

	var running, peak int32
	unblock := make(chan struct{})

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Submit(&testJob{
			invoke: func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-unblock
				atomic.AddInt32(&running, -1)
			},
		}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&running) == 2
	}, time.Second, time.Millisecond)

	close(unblock)
	q.Wait()
	require.Equal(t, int32(2), atomic.LoadInt32(&peak))
	require.Equal(t, 8, q.Pending())
}

func TestQueueStartDispatchFrames(t *testing.T) {
	q := NewQueue(8, time.Millisecond)
	defer q.Close()
	go q.StartDispatchFrames()

	var applying, overlaps, applied int32
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Submit(&testJob{
			apply: func(stamp FrameStamp) {
				if atomic.AddInt32(&applying, 1) != 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(10 * time.Microsecond)
				atomic.AddInt32(&applying, -1)
				atomic.AddInt32(&applied, 1)
			},
		}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&applied) == 50
	}, 5*time.Second, time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&overlaps))
	require.NotZero(t, q.Frame())
}

func TestQueueClose(t *testing.T) {
	t.Run("cancels running invokes", func(t *testing.T) {
		q := NewQueue(1, time.Hour)

		started := make(chan struct{})
		var canceled int32
		require.NoError(t, q.Submit(&testJob{
			invoke: func(ctx context.Context) {
				close(started)
				<-ctx.Done()
				atomic.StoreInt32(&canceled, 1)
			},
		}))
		require.NoError(t, q.Submit(&testJob{}))

		<-started
		q.Close()
		q.Close()
		require.Equal(t, int32(1), atomic.LoadInt32(&canceled))
	})

	t.Run("submit after close", func(t *testing.T) {
		q := NewQueue(1, time.Hour)
		q.Close()

		err := q.Submit(&testJob{})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeClosed))
	})

	t.Run("stops dispatcher", func(t *testing.T) {
		q := NewQueue(1, time.Millisecond)

		done := make(chan struct{})
		go func() {
			q.StartDispatchFrames()
			close(done)
		}()

		q.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
	})
}
