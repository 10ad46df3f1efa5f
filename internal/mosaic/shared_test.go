package mosaic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShared_WaitReleasedReturnsAfterClear(t *testing.T) {
	s := NewShared(NewSoftwareEngine(SoftwareConfig{}))
	require.NoError(t, s.Initialize(8, 8, NV21Size(8, 8)))

	done := make(chan error, 1)
	go func() { done <- s.WaitReleased(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitReleased returned while memory is held")
	case <-time.After(20 * time.Millisecond):
	}

	s.Clear()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReleased not woken by Clear")
	}
}

func TestShared_WaitReleasedCancelled(t *testing.T) {
	s := NewShared(NewSoftwareEngine(SoftwareConfig{}))
	require.NoError(t, s.Initialize(8, 8, NV21Size(8, 8)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.WaitReleased(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitReleased not woken by cancellation")
	}
	assert.True(t, s.IsMemoryAllocated())
}

func TestShared_WaitReleasedImmediate(t *testing.T) {
	s := NewShared(NewSoftwareEngine(SoftwareConfig{}))
	assert.NoError(t, s.WaitReleased(context.Background()))
}
