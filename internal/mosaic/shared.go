package mosaic

import (
	"context"
	"sync"
)

// Shared is the process-wide engine. It serialises the lifecycle calls
// (Initialize, Reset, Clear) and lets a new session wait, without polling,
// until a previous session has released the engine memory.
type Shared struct {
	Engine

	mu   sync.Mutex
	cond *sync.Cond
}

// NewShared wraps e.
func NewShared(e Engine) *Shared {
	s := &Shared{Engine: e}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Shared) Initialize(width, height, bufSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Engine.Initialize(width, height, bufSize)
}

func (s *Shared) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Engine.Reset()
}

// Clear releases the engine memory and wakes every WaitReleased caller.
func (s *Shared) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Engine.Clear()
	s.cond.Broadcast()
}

func (s *Shared) IsMemoryAllocated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Engine.IsMemoryAllocated()
}

// WaitReleased blocks until the engine memory is released or ctx is done.
func (s *Shared) WaitReleased(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.Engine.IsMemoryAllocated() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}
