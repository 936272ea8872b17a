package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"
)

// State is an item's position in its per-run lifecycle.
type State int32

const (
	Ready State = iota
	Processing
	Success
	Failure
	Cancelled
)

var stateNames = [...]string{
	Ready:      "ready",
	Processing: "processing",
	Success:    "success",
	Failure:    "failure",
	Cancelled:  "cancelled",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends the item's lifecycle for the run.
func (s State) Terminal() bool {
	return s == Success || s == Failure || s == Cancelled
}

// Mode selects between computing new digests and checking existing ones.
type Mode int

const (
	Create Mode = iota
	Verify
)

func (m Mode) String() string {
	if m == Verify {
		return "verify"
	}
	return "create"
}

// Item is one file in a batch. While a batch runs, only the worker that
// dequeued the item writes its result fields, and it does so before the
// terminal state is published; readers must check State first.
type Item struct {
	ModTime   time.Time
	Err       error
	Path      string
	Name      string
	Algorithm Algorithm
	Expected  string // verify mode; may be filled from a sidecar
	Digest    string
	Status    string
	Size      int64
	Duration  time.Duration

	// sidecarErr explains why no expected digest could be loaded.
	sidecarErr error

	state atomic.Int32
	// doomed is set by CancelItem on a Ready item so the worker cancels it
	// instead of hashing it.
	doomed atomic.Bool
	// settled is set once the item's context is released; it can no longer
	// be cancelled.
	settled atomic.Bool
}

// NewItem creates a Ready item for path.
func NewItem(path string, size int64, alg Algorithm) *Item {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	return &Item{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      size,
		Algorithm: alg,
	}
}

// State returns the current lifecycle state.
func (it *Item) State() State {
	return State(it.state.Load())
}

// Reset returns the item to Ready and clears the previous run's result so it
// can be processed by a fresh batch.
func (it *Item) Reset() {
	it.Digest = ""
	it.Status = ""
	it.Err = nil
	it.Duration = 0
	it.doomed.Store(false)
	it.settled.Store(false)
	it.state.Store(int32(Ready))
}

// transition moves the item from one state to another. It fails if the
// item is not in from, so no transition can run twice.
func (it *Item) transition(from, to State) error {
	if !validTransition(from, to) {
		return fmt.Errorf("%s: invalid transition %s -> %s", it.Path, from, to)
	}
	if !it.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%s: transition %s -> %s: item is %s", it.Path, from, to, it.State())
	}
	return nil
}

// finish records the outcome and publishes the terminal state. Result
// fields are written before the atomic store so any reader that observes
// the terminal state also observes them.
func (it *Item) finish(to State, status string, err error, d time.Duration) error {
	it.Status = status
	it.Err = err
	it.Duration = d
	return it.transition(Processing, to)
}

func validTransition(from, to State) bool {
	switch from {
	case Ready:
		// Ready -> Cancelled only happens at finalize.
		return to == Processing || to == Cancelled
	case Processing:
		return to.Terminal()
	default:
		return false
	}
}
