package safety

import (
	"sync"
	"time"

	"vlearn/internal/logging"
)

// FailureManager tracks per-operation error counts and open/closed circuit
// state. Once an operation's error count exceeds the threshold the circuit
// opens and IsOperationSafe reports false until the cool-down elapses, at
// which point the breaker resets automatically.
type FailureManager struct {
	threshold int
	cooldown  time.Duration

	mu    sync.Mutex
	state map[string]*operationState

	// test seam
	now func() time.Time
}

type operationState struct {
	errorCount  int
	lastFailure time.Time
	openedAt    time.Time
	open        bool
}

// NewFailureManager creates a breaker with the given error threshold and
// cool-down period.
func NewFailureManager(threshold int, cooldown time.Duration) *FailureManager {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &FailureManager{
		threshold: threshold,
		cooldown:  cooldown,
		state:     make(map[string]*operationState),
		now:       time.Now,
	}
}

// RecordFailure increments the operation's error counter and opens the
// circuit once the threshold is exceeded. Bookkeeping never panics.
func (f *FailureManager) RecordFailure(operation string) {
	defer func() { _ = recover() }()

	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state[operation]
	if st == nil {
		st = &operationState{}
		f.state[operation] = st
	}
	st.errorCount++
	st.lastFailure = f.now()

	if !st.open && st.errorCount > f.threshold {
		st.open = true
		st.openedAt = st.lastFailure
		logging.Safety("circuit opened for %s after %d failures (cooldown %v)",
			operation, st.errorCount, f.cooldown)
	}
}

// RecordSuccess clears the operation's error counter. A closed circuit stays
// closed; an open circuit still waits out its cool-down.
func (f *FailureManager) RecordSuccess(operation string) {
	defer func() { _ = recover() }()

	f.mu.Lock()
	defer f.mu.Unlock()

	if st := f.state[operation]; st != nil && !st.open {
		st.errorCount = 0
	}
}

// IsOperationSafe reports whether the operation's circuit is closed. An open
// circuit whose cool-down has elapsed resets and reports safe again.
func (f *FailureManager) IsOperationSafe(operation string) (safe bool) {
	defer func() {
		if r := recover(); r != nil {
			safe = false
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state[operation]
	if st == nil || !st.open {
		return true
	}
	if f.now().Sub(st.openedAt) >= f.cooldown {
		logging.Safety("circuit reset for %s after cooldown", operation)
		st.open = false
		st.errorCount = 0
		return true
	}
	return false
}

// ErrorCount returns the current error counter for an operation.
func (f *FailureManager) ErrorCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st := f.state[operation]; st != nil {
		return st.errorCount
	}
	return 0
}
