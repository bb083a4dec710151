package worker

import (
	"fmt"

	"github.com/c360/semcache/errors"
)

// Pool lifecycle and submission errors.
var (
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolAlreadyStarted = errors.New("worker: pool already started")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrStopTimeout        = errors.New("worker: workers still busy at stop deadline")

	// ErrQueueFull is returned by Submit instead of blocking. It matches
	// errors.ErrResourceExhausted.
	ErrQueueFull = fmt.Errorf("worker: queue at capacity: %w", errors.ErrResourceExhausted)
)
