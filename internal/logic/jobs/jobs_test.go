package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, r *Runner) Delivery {
	t.Helper()
	select {
	case d := <-r.Events():
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return Delivery{}
	}
}

func TestRunner_DeliversEventAndFreesSlotOnFinish(t *testing.T) {
	var finished []State
	r := NewRunner(func(_ string, s State, _ time.Duration) { finished = append(finished, s) })
	defer r.Close()

	h, err := r.Submit(context.Background(), "low-res", func(ctx context.Context) Event { return ResetToPreview{} })
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, h.ID)

	d := receive(t, r)
	assert.Same(t, h, d.Handle)
	assert.IsType(t, ResetToPreview{}, d.Event)
	assert.Equal(t, Completed, h.State())
	assert.True(t, r.Running(), "slot stays taken until Finish")

	r.Finish(h)
	assert.False(t, r.Running())
	assert.Equal(t, Disposed, h.State())
	assert.Equal(t, []State{Completed}, finished)
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
}

func TestRunner_RejectsSecondJob(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	release := make(chan struct{})
	h, err := r.Submit(context.Background(), "high-res", func(ctx context.Context) Event {
		<-release
		return ResetWithThumbnail{}
	})
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), "low-res", func(ctx context.Context) Event { return ResetToPreview{} })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	d := receive(t, r)
	r.Finish(d.Handle)
	assert.Same(t, h, d.Handle)

	_, err = r.Submit(context.Background(), "low-res", func(ctx context.Context) Event { return ResetToPreview{} })
	assert.NoError(t, err)
}

func TestRunner_AtMostOneConcurrently(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	var running, peak atomic.Int32
	job := func(ctx context.Context) Event {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return ResetToPreview{}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = r.Submit(context.Background(), "job", job)
			}
		}()
	}
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			select {
			case d := <-r.Events():
				r.Finish(d.Handle)
			case <-time.After(100 * time.Millisecond):
				return
			}
		}
	}()
	wg.Wait()
	<-consumerDone
	assert.Equal(t, int32(1), peak.Load())
}

func TestRunner_Cancel(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	started := make(chan struct{})
	h, err := r.Submit(context.Background(), "high-res", func(ctx context.Context) Event {
		close(started)
		<-ctx.Done()
		return ResetToPreview{}
	})
	require.NoError(t, err)
	<-started
	r.Cancel()

	d := receive(t, r)
	assert.Equal(t, Cancelled, h.State())
	assert.ErrorIs(t, h.Context().Err(), context.Canceled)
	r.Finish(d.Handle)
}

func TestRunner_FinishIgnoresStaleHandle(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	h, _ := r.Submit(context.Background(), "a", func(ctx context.Context) Event { return ResetToPreview{} })
	d := receive(t, r)
	r.Finish(d.Handle)
	r.Finish(h) // second call is a no-op

	h2, err := r.Submit(context.Background(), "b", func(ctx context.Context) Event { return ResetToPreview{} })
	require.NoError(t, err)
	r.Finish(h)
	assert.True(t, r.Running(), "stale Finish must not free another job's slot")
	r.Finish(receive(t, r).Handle)
	assert.Equal(t, Disposed, h2.State())
}

func TestRunner_CloseCancelsAndRejects(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Submit(context.Background(), "a", func(ctx context.Context) Event {
		<-ctx.Done()
		return ResetToPreview{}
	})
	require.NoError(t, err)

	r.Close()
	_, err = r.Submit(context.Background(), "b", func(ctx context.Context) Event { return ResetToPreview{} })
	assert.ErrorIs(t, err, ErrClosed)
}
