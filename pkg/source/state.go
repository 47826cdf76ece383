package source

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/optisource/pkg/observability"
)

// State is a step of the run state machine:
//
//	Idle -> Authenticating -> AuthFailed
//	                       -> Authenticated -> Fetching -> Expanding -> Completed
//
// A run whose context is cancelled after authentication ends in Cancelled.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateAuthFailed     State = "auth_failed"
	StateAuthenticated  State = "authenticated"
	StateFetching       State = "fetching"
	StateExpanding      State = "expanding"
	StateCompleted      State = "completed"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateAuthFailed || s == StateCompleted || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:           {StateAuthenticating},
	StateAuthenticating: {StateAuthFailed, StateAuthenticated, StateCancelled},
	StateAuthenticated:  {StateFetching, StateCancelled},
	StateFetching:       {StateExpanding, StateCancelled},
	StateExpanding:      {StateCompleted, StateCancelled},
}

// machine tracks the state of one run and reports every transition.
type machine struct {
	runID  string
	logger *log.Logger
	hooks  observability.RunHooks

	mu    sync.Mutex
	state State
}

func newMachine(runID string, logger *log.Logger, hooks observability.RunHooks) *machine {
	return &machine{runID: runID, logger: logger, hooks: hooks, state: StateIdle}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// to moves to next. Transitions the state machine does not allow are
// ignored and reported false.
func (m *machine) to(ctx context.Context, next State) bool {
	m.mu.Lock()
	from := m.state
	allowed := false
	for _, s := range transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if allowed {
		m.state = next
	}
	m.mu.Unlock()

	if !allowed {
		m.logger.Warn("invalid state transition", "from", from, "to", next)
		return false
	}
	m.logger.Info("state", "from", from, "to", next)
	m.hooks.OnStateChange(ctx, m.runID, string(from), string(next))
	return true
}
