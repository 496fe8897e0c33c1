package shm

import (
	"context"
	"fmt"
	"time"
)

// Signal is the producer's "new data available" notification. Wait
// blocks until the producer asserts the signal, the context ends, or
// the underlying primitive fails.
type Signal interface {
	Wait(ctx context.Context) error
	Close() error
}

// WaitError surfaces an OS-level wait failure with its original code.
// A wait failure means the producer-side primitive is gone; callers
// treat it as fatal for the loop.
type WaitError struct {
	Op   string
	Code error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait on %s failed: %v", e.Op, e.Code)
}

func (e *WaitError) Unwrap() error {
	return e.Code
}

// ManualSignal is a channel-pulsed signal for tests. Each Pulse
// releases one pending or future Wait.
type ManualSignal struct {
	ch     chan struct{}
	closed chan struct{}
}

func NewManualSignal() *ManualSignal {
	return &ManualSignal{
		ch:     make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Pulse asserts the signal. Coalesces if a pulse is already pending,
// matching edge-triggered producer events.
func (s *ManualSignal) Pulse() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *ManualSignal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-s.closed:
		return &WaitError{Op: "manual signal", Code: ErrNotPresent}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ManualSignal) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

const signalPollInterval = time.Millisecond
