// Package job provides the Handle aggregate for tracking long-running video
// generation operations on the remote service.
// A handle moves through a two-state machine (PENDING -> DONE) driven by
// status re-checks; transitions are one-way and never regress.
package job

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a Handle.
type State string

const (
	// StatePending indicates the remote operation has not finished yet.
	StatePending State = "PENDING"
	// StateDone indicates the remote operation reported completion.
	StateDone State = "DONE"
)

// Static errors for handle transitions.
var (
	// ErrNameRequired is returned when a handle is created without an operation name.
	ErrNameRequired = errors.New("job: operation name is required")
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("job: invalid state transition")
	// ErrRegression is returned when a status update would move a handle backwards.
	ErrRegression = errors.New("job: status regression")
	// ErrNameMismatch is returned when a status update belongs to another operation.
	ErrNameMismatch = errors.New("job: operation name mismatch")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StatePending: {StatePending, StateDone},
	StateDone:    {StateDone},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Status is a single observation of a remote operation as reported by the relay.
type Status struct {
	// Name is the opaque remote operation identifier.
	Name string
	// Done reports whether the remote operation finished.
	Done bool
	// ResultURI is the media URI, present only once Done is true.
	ResultURI string
}

// Handle tracks one remote video operation between submission and the moment
// the caller reads its result URI.
type Handle struct {
	mu sync.RWMutex

	// Name is the opaque remote operation identifier.
	Name string
	// State is the current handle state.
	State State
	// ResultURI is the media URI reported on completion.
	ResultURI string
	// Polls counts status re-checks applied after submission.
	Polls int
	// CreatedAt is when the handle was created.
	CreatedAt time.Time
	// UpdatedAt is when the handle was last updated.
	UpdatedAt time.Time
	// CompletedAt is when the handle reached DONE.
	CompletedAt time.Time
}

// New creates a Handle from the first status returned on submission.
func New(initial Status) (*Handle, error) {
	if initial.Name == "" {
		return nil, ErrNameRequired
	}
	now := time.Now()
	h := &Handle{
		Name:      initial.Name,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if initial.Done {
		h.State = StateDone
		h.ResultURI = initial.ResultURI
		h.CompletedAt = now
	}
	return h, nil
}

// Advance replaces the handle's view with a fresh status observation.
// A done handle may not return to pending, and a result URI, once seen, may
// not be dropped or replaced.
func (h *Handle) Advance(next Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if next.Name != "" && next.Name != h.Name {
		return fmt.Errorf("%w: have %q, got %q", ErrNameMismatch, h.Name, next.Name)
	}

	from := h.State
	to := StatePending
	if next.Done {
		to = StateDone
	}
	if h.ResultURI != "" && next.ResultURI != h.ResultURI {
		return fmt.Errorf("%w: result URI changed", ErrRegression)
	}
	if err := h.transitionTo(to); err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrRegression, from, to, err)
	}

	h.Polls++
	if next.ResultURI != "" {
		h.ResultURI = next.ResultURI
	}
	return nil
}

// transitionTo changes the handle state. The caller holds the lock.
// Returns ErrInvalidTransition if the transition is not allowed.
func (h *Handle) transitionTo(state State) error {
	if !canTransition(h.State, state) {
		return ErrInvalidTransition
	}
	h.UpdatedAt = time.Now()
	if state == StateDone && h.State != StateDone {
		h.CompletedAt = h.UpdatedAt
	}
	h.State = state
	return nil
}

// IsDone returns true once the remote operation reported completion.
func (h *Handle) IsDone() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.State == StateDone
}

// GetState returns the current handle state (thread-safe).
func (h *Handle) GetState() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.State
}

// URI returns the result URI (thread-safe). Empty until the handle is done.
func (h *Handle) URI() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ResultURI
}

// Clone creates a copy of the handle for safe reads.
func (h *Handle) Clone() *Handle {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return &Handle{
		Name:        h.Name,
		State:       h.State,
		ResultURI:   h.ResultURI,
		Polls:       h.Polls,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
		CompletedAt: h.CompletedAt,
	}
}
