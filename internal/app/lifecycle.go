package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// State represents the lifecycle state of a run.
type State int

const (
	StateConfiguring State = iota
	StateLaunching
	StateStreaming
	StateDraining
	StateCompleted
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "Configuring"
	case StateLaunching:
		return "Launching"
	case StateStreaming:
		return "Streaming"
	case StateDraining:
		return "Draining"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// next holds the forward transition of each non-terminal state. Every
// non-terminal state may also move to StateFailed.
var next = map[State]State{
	StateConfiguring: StateLaunching,
	StateLaunching:   StateStreaming,
	StateStreaming:   StateDraining,
	StateDraining:    StateCompleted,
}

// Lifecycle manages the state machine for one run.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	logger       ports.Logger
	eventEmitter EventEmitter
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// NewLifecycle creates a lifecycle in StateConfiguring.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:        StateConfiguring,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error wrapping domain.ErrInvalidTransition if the transition is not valid.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	valid := !oldState.Terminal() && (newState == StateFailed || next[oldState] == newState)
	if !valid {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, oldState, newState)
	}

	l.state = newState
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	fields := []ports.Field{
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
	}
	if reason != "" {
		fields = append(fields, ports.String("reason", reason))
	}
	if newState == StateFailed {
		l.logger.Warn("state transition", fields...)
	} else {
		l.logger.Info("state transition", fields...)
	}

	return nil
}
