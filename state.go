package hsm

import "fmt"

// State is a node in the state forest — a leaf or a composite state. States
// are created through Machine.CreateState and wired together with
// AddSubstate/SetInitialSubstate/AddTransition; once a machine has been
// Initialize'd the tree is treated as read-only (see the package doc).
//
// A *State doubles as the "StateHandle" referenced throughout the design:
// the construction API hands callers a *State and expects it back wherever
// a target or parent is needed.
type State struct {
	id     StateID
	owner  *core
	parent *State
	children []*State
	initial  *State

	history     HistoryKind
	historySlot *State // weak reference: looked up by identity, never owns

	entry, exit func(Event)
	final       bool

	transitions map[EventID][]*Transition
}

// ID returns the state's identifier.
func (s *State) ID() StateID {
	return s.id
}

// IsLeaf reports whether the state has no substates.
func (s *State) IsLeaf() bool {
	return len(s.children) == 0
}

// Parent returns the state's parent, or nil for a top-level state.
func (s *State) Parent() *State {
	return s.parent
}

// StateOption configures a State at creation time via Machine.CreateState.
type StateOption func(*State)

// WithEntry sets the state's entry action.
func WithEntry(f func(Event)) StateOption {
	return func(s *State) { s.entry = f }
}

// WithExit sets the state's exit action.
func WithExit(f func(Event)) StateOption {
	return func(s *State) { s.exit = f }
}

// WithHistory marks the composite state as keeping shallow or deep history.
func WithHistory(kind HistoryKind) StateOption {
	return func(s *State) { s.history = kind }
}

// WithFinal marks the state as a final state: it accepts no outgoing
// transitions. Entering it is reported through the ordinary
// TransitionCompleted event, since done-event propagation belongs to the
// orthogonal-region machinery this runtime does not implement.
func WithFinal() StateOption {
	return func(s *State) { s.final = true }
}

// AddSubstate attaches child as a direct substate of s. It panics if child
// already has a parent (states are moved, not copied) or if doing so would
// introduce a cycle in the forest.
func (s *State) AddSubstate(child *State) *State {
	if child.owner != s.owner {
		panic(fmt.Sprintf("hsm: state %v belongs to a different machine than %v", child.id, s.id))
	}
	if child.parent != nil {
		panic(fmt.Sprintf("hsm: state %v already has a parent", child.id))
	}
	for p := s; p != nil; p = p.parent {
		if p == child {
			panic(fmt.Sprintf("hsm: adding %v as a substate of %v would create a cycle", child.id, s.id))
		}
	}
	child.parent = s
	s.children = append(s.children, child)
	return s
}

// SetInitialSubstate marks child as the substate entered when s is entered
// without a history restoration. It panics if child is not a direct child
// of s.
func (s *State) SetInitialSubstate(child *State) *State {
	if child.parent != s {
		panic(fmt.Sprintf("hsm: %v is not a direct substate of %v", child.id, s.id))
	}
	s.initial = child
	return s
}

// AddTransition appends a transition triggered by event to s's transition
// table. A nil target makes the transition internal: only its actions run,
// with no exit/entry chain and no change of current state. A non-nil target
// equal to s itself is an external self-transition: s is exited and
// re-entered.
func (s *State) AddTransition(event EventID, target *State, opts ...TransitionOption) *State {
	if s.final {
		panic(fmt.Sprintf("hsm: state %v is final and cannot have outgoing transitions", s.id))
	}
	if target != nil && target.owner != s.owner {
		panic(fmt.Sprintf("hsm: transition target %v belongs to a different machine than %v", target.id, s.id))
	}
	t := &Transition{source: s, event: event, target: target}
	for _, opt := range opts {
		opt(t)
	}
	if s.transitions == nil {
		s.transitions = make(map[EventID][]*Transition)
	}
	s.transitions[event] = append(s.transitions[event], t)
	return s
}

// validate checks that, if s is ever entered, there is a unique path down to
// a leaf: every composite state along the way must declare an initial
// substate.
func (s *State) validate(seen map[*State]bool) error {
	if seen[s] {
		return nil
	}
	seen[s] = true
	if !s.IsLeaf() && s.initial == nil {
		return fmt.Errorf("hsm: composite state %v has no initial substate", s.id)
	}
	for _, t := range allTransitions(s) {
		if t.target != nil {
			if err := t.target.validate(seen); err != nil {
				return err
			}
		}
	}
	for _, c := range s.children {
		if err := c.validate(seen); err != nil {
			return err
		}
	}
	return nil
}

func allTransitions(s *State) []*Transition {
	var out []*Transition
	for _, list := range s.transitions {
		out = append(out, list...)
	}
	return out
}
