package hsm

// Transition is a guarded, actioned edge in a state's transition table. Its
// source is implicitly the State that owns it. A nil Target makes it an
// internal transition: no exit or entry chain runs, only the actions, and
// the current state does not change.
type Transition struct {
	source *State
	event  EventID
	guard  func(Event) bool
	actions []func(Event)
	target *State
}

// TransitionOption configures a Transition at creation time via
// State.AddTransition.
type TransitionOption func(*Transition)

// Guard attaches a guard predicate. Absence is equivalent to a guard that
// always returns true. A guard that panics is treated as if it returned
// false, and is reported as an ExceptionThrown event.
func Guard(f func(Event) bool) TransitionOption {
	return func(t *Transition) { t.guard = f }
}

// Action appends an action to the transition's action list. Actions run in
// the order they were added, even if an earlier one panics.
func Action(f func(Event)) TransitionOption {
	return func(t *Transition) { t.actions = append(t.actions, f) }
}

// isInternal reports whether the transition has no target.
func (t *Transition) isInternal() bool {
	return t.target == nil
}

// evalGuard runs the transition's guard, converting a panic into an error.
// A nil guard always passes.
func (t *Transition) evalGuard(e Event) (ok bool, err error) {
	if t.guard == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, panicToError(r)
		}
	}()
	return t.guard(e), nil
}

// runActions runs every action in order, collecting one error per panicking
// action without aborting the remaining actions.
func (t *Transition) runActions(e Event) []error {
	var errs []error
	for _, action := range t.actions {
		if err := runCatching(action, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// runCatching invokes f(e), converting a panic into an error.
func runCatching(f func(Event), e Event) (err error) {
	if f == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	f(e)
	return nil
}
